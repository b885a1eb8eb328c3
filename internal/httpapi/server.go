package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wxassist/internal/account"
	"wxassist/internal/callback"
	"wxassist/internal/config"
	"wxassist/internal/logbus"
	"wxassist/internal/message"
	"wxassist/internal/model"
	"wxassist/internal/notify"
	"wxassist/internal/store/sqlite"
	"wxassist/internal/ws"
)

type Options struct {
	Cfg        config.Config
	Bus        *logbus.Bus
	Store      *sqlite.Store
	Accounts   *account.Service
	Messages   *message.Service
	Dispatcher *callback.Dispatcher
}

type Server struct {
	cfg        config.Config
	bus        *logbus.Bus
	store      *sqlite.Store
	accounts   *account.Service
	messages   *message.Service
	dispatcher *callback.Dispatcher
	ws         *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:        opts.Cfg,
		bus:        opts.Bus,
		store:      opts.Store,
		accounts:   opts.Accounts,
		messages:   opts.Messages,
		dispatcher: opts.Dispatcher,
		ws:         ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/callback", s.handleCallback)
	api.HandleFunc("/api/v1/accounts", s.handleAccounts)
	api.HandleFunc("/api/v1/accounts/login", s.handleStartLogin)
	api.HandleFunc("/api/v1/accounts/login/confirm", s.handleConfirmLogin)
	api.HandleFunc("/api/v1/accounts/logout", s.handleLogout)
	api.HandleFunc("/api/v1/accounts/status", s.handleOnlineStatus)
	api.HandleFunc("/api/v1/messages", s.handleMessages)
	api.HandleFunc("/api/v1/messages/send", s.handleSendMessage)
	api.HandleFunc("/api/v1/settings/email", s.handleEmailSettings)
	api.HandleFunc("/api/v1/settings/email/test", s.handleEmailTest)
	api.HandleFunc("/api/v1/settings/autoreply", s.handleAutoReplySettings)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCallback 是上游回调入口：无论哪种失败，出口都是结构化 JSON，
// 绝不把 panic/裸错误漏到 HTTP 层。
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty body"})
		return
	}

	var evt callback.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
		return
	}

	handled, err := s.dispatcher.Dispatch(r.Context(), evt)
	if err != nil {
		var verr *callback.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Reason})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if !handled {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := s.store.ListAccounts(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": accounts})
	case http.MethodPost:
		type accountUpsertPayload struct {
			ID        string  `json:"id,omitempty"`
			Name      *string `json:"name,omitempty"`
			DeviceID  string  `json:"deviceId"`
			BaseURL   *string `json:"baseUrl,omitempty"`
			Token     *string `json:"token,omitempty"`
			Proxy     *string `json:"proxy,omitempty"`
			TimeoutMs *int    `json:"timeoutMs,omitempty"`
		}

		var body accountUpsertPayload
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		deviceID := strings.TrimSpace(body.DeviceID)
		if deviceID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "deviceId is required"})
			return
		}

		var current model.Account
		if strings.TrimSpace(body.ID) != "" {
			if found, err := s.store.GetAccount(r.Context(), strings.TrimSpace(body.ID)); err == nil {
				current = found
			}
		}
		if current.ID == "" {
			if found, err := s.store.GetAccountByDeviceID(r.Context(), deviceID); err == nil {
				current = found
			}
		}

		next := current
		next.DeviceID = deviceID
		if strings.TrimSpace(body.ID) != "" {
			next.ID = strings.TrimSpace(body.ID)
		}
		if body.Name != nil {
			next.Name = strings.TrimSpace(*body.Name)
		}
		if body.BaseURL != nil {
			next.BaseURL = strings.TrimSpace(*body.BaseURL)
		}
		if body.Token != nil {
			next.Token = strings.TrimSpace(*body.Token)
		}
		if body.Proxy != nil {
			next.Proxy = strings.TrimSpace(*body.Proxy)
		}
		if body.TimeoutMs != nil {
			next.TimeoutMs = *body.TimeoutMs
		}

		acc, err := s.store.UpsertAccount(r.Context(), next)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": acc})
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
			return
		}
		if err := s.store.DeleteAccount(r.Context(), id); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

type startLoginPayload struct {
	AccountID string `json:"accountId"`
	Region    string `json:"region,omitempty"`
	Proxy     string `json:"proxy,omitempty"`
}

func (s *Server) handleStartLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body startLoginPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.AccountID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "accountId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	qr, err := s.accounts.StartLogin(ctx, strings.TrimSpace(body.AccountID), body.Region, body.Proxy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": qr})
}

type accountIDPayload struct {
	AccountID string `json:"accountId"`
}

func (s *Server) handleConfirmLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body accountIDPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.AccountID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "accountId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := s.accounts.ConfirmLogin(ctx, strings.TrimSpace(body.AccountID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": res})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body accountIDPayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.AccountID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "accountId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	ok, err := s.accounts.Logout(ctx, strings.TrimSpace(body.AccountID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ok": ok}})
}

// handleOnlineStatus 探活之后按观察值应用 mark 转移：探活本身只读，
// 状态推进由这里（探活的调用方）决定。
func (s *Server) handleOnlineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	online, err := s.accounts.CheckOnlineStatus(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if online {
		err = s.accounts.MarkOnline(ctx, id)
	} else {
		err = s.accounts.MarkOffline(ctx, id)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"online": online}})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "accountId is required"})
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := s.messages.List(r.Context(), accountID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": msgs})
}

type sendMessagePayload struct {
	AccountID string `json:"accountId"`
	ToUser    string `json:"toUser"`
	Content   string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body sendMessagePayload
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.AccountID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "accountId is required"})
		return
	}

	acc, err := s.store.GetAccount(r.Context(), strings.TrimSpace(body.AccountID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "account not found"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	msg, err := s.messages.SendText(ctx, acc, strings.TrimSpace(body.ToUser), body.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": msg})
}

type emailSettingsPayload struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Email    *string `json:"email,omitempty"`
	AuthCode *string `json:"authCode,omitempty"`
}

func (s *Server) handleEmailSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		val, ok, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": model.EmailSettings{},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": val})
	case http.MethodPost:
		var body emailSettingsPayload
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		current, _, err := s.store.GetEmailSettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}

		next := current
		if body.Enabled != nil {
			next.Enabled = *body.Enabled
		}
		if body.Email != nil {
			next.Email = strings.TrimSpace(*body.Email)
		}
		if body.AuthCode != nil {
			ac := strings.TrimSpace(*body.AuthCode)
			if ac != "******" {
				next.AuthCode = ac
			}
		}

		saved, err := s.store.UpsertEmailSettings(r.Context(), next)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	val, _, err := s.store.GetEmailSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	if err := notify.SendAccountStatusEmail(ctx, val, []notify.AccountEvent{{
		At:        time.Now().UnixMilli(),
		AccountID: "test",
		Name:      "邮件测试",
		DeviceID:  "test-device",
		Status:    "offline",
		Reason:    "这是一封测试邮件",
	}}); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type autoReplySettingsPayload struct {
	Enabled *bool `json:"enabled,omitempty"`
}

func (s *Server) handleAutoReplySettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		val, ok, err := s.store.GetAutoReplySettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			val = model.AutoReplySettings{Enabled: true}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": val})
	case http.MethodPost:
		var body autoReplySettingsPayload
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		current, ok, err := s.store.GetAutoReplySettings(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			current.Enabled = true
		}
		if body.Enabled != nil {
			current.Enabled = *body.Enabled
		}

		saved, err := s.store.UpsertAutoReplySettings(r.Context(), current)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}
