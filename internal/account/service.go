package account

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wxassist/internal/logbus"
	"wxassist/internal/model"
	"wxassist/internal/notify"
	"wxassist/internal/store/sqlite"
	"wxassist/internal/wxapi"
)

type Options struct {
	Store    *sqlite.Store
	API      *wxapi.Client
	Bus      *logbus.Bus
	Notifier notify.Notifier
}

// Service 驱动账号的登录/在线生命周期：显式操作（扫码登录、确认、登出、探活）
// 和回调触发的 mark* 转移都从这里走，状态变更统一落库。
type Service struct {
	store    *sqlite.Store
	api      *wxapi.Client
	bus      *logbus.Bus
	notifier notify.Notifier
}

func New(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		api:      opts.API,
		bus:      opts.Bus,
		notifier: opts.Notifier,
	}
}

type LoginQR struct {
	QrCodeURL string `json:"qrCodeUrl"`
	QrCodeID  string `json:"qrCodeId,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type ConfirmResult struct {
	OK      bool          `json:"ok"`
	Message string        `json:"message,omitempty"`
	Account model.Account `json:"account"`
}

// StartLogin 找上游要一张登录二维码。成功后账号进入 qrcode 状态；
// 远端失败时状态不动，只把调用记账落库。
func (s *Service) StartLogin(ctx context.Context, id, region, proxy string) (LoginQR, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return LoginQR{}, err
	}

	body := map[string]any{"deviceId": acc.DeviceID}
	if region != "" {
		body["region"] = region
	}
	if proxy != "" {
		body["proxy"] = proxy
	}

	env, updated, err := s.api.Invoke(ctx, acc, wxapi.Request{Endpoint: wxapi.EpGetLoginQrCode, JSON: body})
	if err != nil {
		s.persist(ctx, updated)
		return LoginQR{}, &wxapi.LoginError{Op: "start", Err: err}
	}

	var qr LoginQR
	if err := json.Unmarshal(env.Data, &qr); err != nil || qr.QrCodeURL == "" {
		s.persist(ctx, updated)
		return LoginQR{}, &wxapi.LoginError{Op: "start", Err: errors.New("no qr code in response")}
	}

	updated = s.applyStatus(updated, model.StatusQrcode)
	if _, err := s.store.UpsertAccount(ctx, updated); err != nil {
		return LoginQR{}, err
	}
	s.log("info", "二维码已下发", updated, nil)
	return qr, nil
}

type loginProfile struct {
	WxID     string `json:"wxId"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// ConfirmLogin 查询扫码确认结果。远端明确拒绝（还没扫、超时等）不算故障，
// 返回 OK=false 和原因；只有传输/解析错误才作为 error 上抛。
func (s *Service) ConfirmLogin(ctx context.Context, id string) (ConfirmResult, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return ConfirmResult{}, err
	}

	env, updated, err := s.api.Invoke(ctx, acc, wxapi.Request{
		Endpoint: wxapi.EpCheckLogin,
		JSON:     map[string]any{"deviceId": acc.DeviceID},
	})
	if err != nil {
		var apiErr *wxapi.APIError
		if errors.As(err, &apiErr) {
			saved := s.persist(ctx, updated)
			return ConfirmResult{OK: false, Message: apiErr.Message, Account: saved}, nil
		}
		s.persist(ctx, updated)
		return ConfirmResult{}, err
	}

	var profile loginProfile
	_ = json.Unmarshal(env.Data, &profile)
	if profile.WxID != "" {
		updated.WxID = profile.WxID
	}
	if profile.Nickname != "" {
		updated.Nickname = profile.Nickname
	}
	if profile.Avatar != "" {
		updated.Avatar = profile.Avatar
	}
	updated.LastLoginAt = time.Now()
	updated = s.applyStatus(updated, model.StatusOnline)

	saved, err := s.store.UpsertAccount(ctx, updated)
	if err != nil {
		return ConfirmResult{}, err
	}
	s.log("info", "登录成功", saved, map[string]any{"wxId": saved.WxID})
	return ConfirmResult{OK: true, Account: saved}, nil
}

// Logout 请求上游登出。远端失败时状态不动，返回 false，调用方稍后重试。
func (s *Service) Logout(ctx context.Context, id string) (bool, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}

	_, updated, err := s.api.Invoke(ctx, acc, wxapi.Request{
		Endpoint: wxapi.EpLogout,
		JSON:     map[string]any{"deviceId": acc.DeviceID},
	})
	if err != nil {
		s.persist(ctx, updated)
		s.log("warn", "登出失败", acc, map[string]any{"error": err.Error()})
		return false, nil
	}

	updated = s.applyStatus(updated, model.StatusDisconnected)
	if _, err := s.store.UpsertAccount(ctx, updated); err != nil {
		return false, err
	}
	s.log("info", "已登出", updated, nil)
	return true, nil
}

// CheckOnlineStatus 只读探活：刷新 lastActiveAt 并返回上游观察值，
// 不直接改 status——要不要 mark 在线/离线由调用方决定。
func (s *Service) CheckOnlineStatus(ctx context.Context, id string) (bool, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}

	env, updated, err := s.api.Invoke(ctx, acc, wxapi.Request{
		Endpoint: wxapi.EpIsOnline,
		Query:    map[string]string{"deviceId": acc.DeviceID},
	})
	if err != nil {
		s.persist(ctx, updated)
		return false, err
	}

	var data struct {
		Online bool `json:"online"`
	}
	_ = json.Unmarshal(env.Data, &data)

	updated.LastActiveAt = time.Now()
	if _, err := s.store.UpsertAccount(ctx, updated); err != nil {
		return false, err
	}
	return data.Online, nil
}

func (s *Service) MarkOnline(ctx context.Context, id string) error {
	return s.mark(ctx, id, model.StatusOnline, "")
}

func (s *Service) MarkOffline(ctx context.Context, id string) error {
	return s.mark(ctx, id, model.StatusOffline, "")
}

func (s *Service) MarkExpired(ctx context.Context, id string) error {
	return s.mark(ctx, id, model.StatusExpired, "")
}

func (s *Service) MarkError(ctx context.Context, id, reason string) error {
	return s.mark(ctx, id, model.StatusError, reason)
}

func (s *Service) mark(ctx context.Context, id string, to model.AccountStatus, reason string) error {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.ApplyStatus(ctx, acc, to, reason)
	return err
}

// ApplyStatus 把账号推进到目标状态并落库；offline/expired/error 会额外发一条
// 状态提醒。acc 允许带上调用方已经改好的资料字段（回调里的 wxId 等）。
func (s *Service) ApplyStatus(ctx context.Context, acc model.Account, to model.AccountStatus, reason string) (model.Account, error) {
	acc = s.applyStatus(acc, to)
	saved, err := s.store.UpsertAccount(ctx, acc)
	if err != nil {
		return model.Account{}, err
	}

	if s.notifier != nil {
		switch to {
		case model.StatusOffline, model.StatusExpired, model.StatusError:
			s.notifier.NotifyAccountStatus(ctx, notify.AccountEvent{
				At:        time.Now().UnixMilli(),
				AccountID: saved.ID,
				Name:      saved.Name,
				DeviceID:  saved.DeviceID,
				Nickname:  saved.Nickname,
				Status:    string(to),
				Reason:    reason,
			})
		}
	}
	return saved, nil
}

// Touch 只刷新 lastActiveAt，用于识别出账号但状态串不认识的回调。
func (s *Service) Touch(ctx context.Context, acc model.Account) (model.Account, error) {
	acc.LastActiveAt = time.Now()
	return s.store.UpsertAccount(ctx, acc)
}

// applyStatus 套用转移表：表外的转移不拒绝（上游是事实来源，回调可能乱序），
// 只记一条 warn 方便排查。
func (s *Service) applyStatus(acc model.Account, to model.AccountStatus) model.Account {
	if !model.CanTransition(acc.Status, to) {
		s.log("warn", "非常规状态转移", acc, map[string]any{
			"from": string(acc.Status),
			"to":   string(to),
		})
	}
	acc.Status = to
	acc.LastActiveAt = time.Now()
	return acc
}

// persist 落一次记账更新（调用计数、鉴权失败标记），失败只记日志——
// 记账丢失不应该遮住原始错误。
func (s *Service) persist(ctx context.Context, acc model.Account) model.Account {
	saved, err := s.store.UpsertAccount(ctx, acc)
	if err != nil {
		s.log("warn", "账号记账落库失败", acc, map[string]any{"error": err.Error()})
		return acc
	}
	return saved
}

func (s *Service) log(level, msg string, acc model.Account, fields map[string]any) {
	if s.bus == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["accountId"] = acc.ID
	fields["deviceId"] = acc.DeviceID
	s.bus.Log(level, msg, fields)
}
