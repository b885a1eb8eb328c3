package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"wxassist/internal/logbus"
	"wxassist/internal/model"
	"wxassist/internal/store/sqlite"
)

// EmailNotifier 把账号状态事件攒进队列，按时间窗口合并成一封汇总邮件发出，
// 避免一台账号反复掉线时邮箱被刷屏。
type EmailNotifier struct {
	store *sqlite.Store
	bus   *logbus.Bus

	mu     sync.Mutex
	queue  chan AccountEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(store *sqlite.Store, bus *logbus.Bus) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		store:         store,
		bus:           bus,
		queue:         make(chan AccountEvent, 200),
		ctx:           ctx,
		cancel:        cancel,
		summaryWindow: emailSummaryWindow(),
		maxBatch:      50,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyAccountStatus(_ context.Context, evt AccountEvent) {
	select {
	case n.queue <- evt:
	default:
		if n.bus != nil {
			n.bus.Warn("邮件通知丢弃：队列已满", map[string]any{
				"accountId": evt.AccountID,
				"status":    evt.Status,
			})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []AccountEvent
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	resetTimer := func() {
		if n.summaryWindow <= 0 {
			return
		}
		if timer == nil {
			timer = time.NewTimer(n.summaryWindow)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.summaryWindow)
	}

	flush := func(reason string) {
		if len(pending) == 0 {
			stopTimer()
			return
		}
		events := append([]AccountEvent(nil), pending...)
		pending = pending[:0]
		stopTimer()
		n.handleBatch(reason, events)
	}

	for {
		select {
		case <-n.ctx.Done():
			flush("shutdown")
			return
		case evt := <-n.queue:
			pending = append(pending, evt)
			if n.maxBatch > 0 && len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.summaryWindow <= 0 {
				flush("immediate")
				continue
			}
			resetTimer()
		case <-timerCh:
			flush("idle")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, events []AccountEvent) {
	if n.store == nil {
		return
	}

	settings, ok, err := n.store.GetEmailSettings(n.ctx)
	if err != nil {
		if n.bus != nil {
			n.bus.Warn("读取邮件配置失败", map[string]any{"error": err.Error()})
		}
		return
	}
	if !ok || !settings.Enabled {
		if n.bus != nil {
			n.bus.Info("邮件通知未启用", map[string]any{"count": len(events), "reason": reason})
		}
		return
	}
	if err := validateEmailSettings(settings); err != nil {
		if n.bus != nil {
			n.bus.Warn("邮件配置无效", map[string]any{"error": err.Error()})
		}
		return
	}

	if err := SendAccountStatusEmail(n.ctx, settings, events); err != nil {
		if n.bus != nil {
			n.bus.Warn("邮件发送失败", map[string]any{
				"error":  err.Error(),
				"count":  len(events),
				"reason": reason,
			})
		}
		return
	}

	if n.bus != nil {
		n.bus.Info("状态提醒邮件已发送", map[string]any{
			"count":  len(events),
			"reason": reason,
			"to":     strings.TrimSpace(settings.Email),
		})
	}
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

// SendAccountStatusEmail 同步发送一封账号状态汇总邮件（设置页的「测试发送」也走这里）。
func SendAccountStatusEmail(ctx context.Context, settings model.EmailSettings, events []AccountEvent) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events")
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	subject := buildSubject(events)
	htmlBody, textBody, err := buildEmailBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "群助手"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com":
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || domain == "126.com" || domain == "yeah.net":
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com":
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || domain == "hotmail.com" || domain == "live.com":
		return "smtp.office365.com", 587, false, nil
	case domain == "aliyun.com":
		return "smtp.aliyun.com", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSubject(events []AccountEvent) string {
	if len(events) == 1 {
		evt := events[0]
		return fmt.Sprintf("账号状态提醒：%s %s", displayName(evt), statusLabel(evt.Status))
	}
	return fmt.Sprintf("账号状态提醒（%d条）", len(events))
}

var emailHTMLTpl = template.Must(template.New("account-status").Parse(`
<!doctype html>
<html lang="zh-CN">
  <head>
    <meta charset="utf-8" />
    <title>账号状态提醒</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,'PingFang SC','Microsoft YaHei',sans-serif;">
    <div style="max-width:680px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:linear-gradient(135deg,#10b981,#0ea5e9);color:#ffffff;">
          <div style="font-size:16px;font-weight:700;">账号状态提醒</div>
          <div style="margin-top:6px;font-size:12px;opacity:.95;">群助手通知</div>
        </div>
        <div style="padding:22px;">
          <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="width:100%;border-collapse:collapse;">
            <thead>
              <tr style="background:#fafbff;">
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">时间</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">账号</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">状态</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;border-bottom:1px solid #eef0f6;">说明</th>
              </tr>
            </thead>
            <tbody>
              {{ range .Rows }}
              <tr>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .At }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Account }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Status }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;border-bottom:1px solid #eef0f6;">{{ .Reason }}</td>
              </tr>
              {{ end }}
            </tbody>
          </table>
          <div style="margin-top:14px;color:#9ca3af;font-size:12px;">此邮件由系统自动发送</div>
        </div>
      </div>
    </div>
  </body>
</html>
`))

func buildEmailBody(events []AccountEvent) (htmlBody string, textBody string, err error) {
	type row struct {
		At      string
		Account string
		Status  string
		Reason  string
	}

	rows := make([]row, 0, len(events))
	for _, evt := range events {
		at := time.Now()
		if evt.At > 0 {
			at = time.UnixMilli(evt.At)
		}
		rows = append(rows, row{
			At:      at.Format("2006-01-02 15:04:05"),
			Account: displayName(evt),
			Status:  statusLabel(evt.Status),
			Reason:  strings.TrimSpace(evt.Reason),
		})
	}

	var buf bytes.Buffer
	if err := emailHTMLTpl.Execute(&buf, struct{ Rows []row }{Rows: rows}); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString("账号状态提醒\n")
	for _, r := range rows {
		text.WriteString(fmt.Sprintf("- %s | %s | %s | %s\n", r.At, r.Account, r.Status, r.Reason))
	}
	return buf.String(), text.String(), nil
}

func displayName(evt AccountEvent) string {
	if v := strings.TrimSpace(evt.Nickname); v != "" {
		return v
	}
	if v := strings.TrimSpace(evt.Name); v != "" {
		return v
	}
	if v := strings.TrimSpace(evt.DeviceID); v != "" {
		return v
	}
	return evt.AccountID
}

func statusLabel(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "offline":
		return "已掉线"
	case "expired":
		return "登录过期"
	case "error":
		return "异常"
	default:
		return status
	}
}

func emailSummaryWindow() time.Duration {
	v := strings.TrimSpace(os.Getenv("WXASSIST_EMAIL_SUMMARY_SECONDS"))
	if v == "" {
		return 20 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 20 * time.Second
	}
	if n <= 0 {
		return 0
	}
	if n > 600 {
		n = 600
	}
	return time.Duration(n) * time.Second
}
