package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"wxassist/internal/config"
	"wxassist/internal/logbus"
	"wxassist/internal/model"
	"wxassist/internal/notify"
	"wxassist/internal/store/sqlite"
	"wxassist/internal/wxapi"
)

// upstreamStub 按 path 返回配好的响应体，方便每个用例控制上游行为。
type upstreamStub struct {
	mu        sync.Mutex
	responses map[string]string
}

func (u *upstreamStub) set(path, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.responses[path] = body
}

func (u *upstreamStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	body, ok := u.responses[r.URL.Path]
	u.mu.Unlock()
	if !ok {
		body = `{"code":"1000","data":{}}`
	}
	w.Write([]byte(body))
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.AccountEvent
}

func (r *eventRecorder) NotifyAccountStatus(_ context.Context, evt notify.AccountEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) all() []notify.AccountEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.AccountEvent(nil), r.events...)
}

func newService(t *testing.T) (*Service, *sqlite.Store, *upstreamStub, *eventRecorder) {
	t.Helper()

	stub := &upstreamStub{responses: map[string]string{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	bus := logbus.New(64)
	t.Cleanup(bus.Close)

	rec := &eventRecorder{}
	api := wxapi.New(config.UpstreamConfig{BaseURL: srv.URL}, config.ProxyConfig{}, config.LimitsConfig{}, bus)
	svc := New(Options{Store: store, API: api, Bus: bus, Notifier: rec})
	return svc, store, stub, rec
}

func seed(t *testing.T, store *sqlite.Store, status model.AccountStatus) model.Account {
	t.Helper()
	acc, err := store.UpsertAccount(context.Background(), model.Account{
		Name:     "测试账号",
		DeviceID: "dev-1",
		Status:   status,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func TestStartLogin(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusDisconnected)

	stub.set("/open/getLoginQrCode", `{"code":"1000","data":{"qrCodeUrl":"https://wx.qq.com/qr/abc","qrCodeId":"qr-1","expiresIn":120}}`)

	qr, err := svc.StartLogin(ctx, acc.ID, "", "")
	if err != nil {
		t.Fatalf("StartLogin: %v", err)
	}
	if qr.QrCodeURL != "https://wx.qq.com/qr/abc" || qr.QrCodeID != "qr-1" {
		t.Fatalf("unexpected qr: %+v", qr)
	}

	got, _ := store.GetAccount(ctx, acc.ID)
	if got.Status != model.StatusQrcode {
		t.Fatalf("status = %s, want qrcode", got.Status)
	}
	if got.CallCount != 1 {
		t.Fatalf("callCount = %d, want 1", got.CallCount)
	}
}

func TestStartLoginRemoteFailure(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusDisconnected)

	stub.set("/open/getLoginQrCode", `{"code":"2001","msg":"设备繁忙"}`)

	_, err := svc.StartLogin(ctx, acc.ID, "", "")
	var lerr *wxapi.LoginError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LoginError, got %v", err)
	}
	var apiErr *wxapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "2001" {
		t.Fatalf("expected wrapped APIError 2001, got %v", err)
	}

	// 失败时状态不动，但调用记账要落库。
	got, _ := store.GetAccount(ctx, acc.ID)
	if got.Status != model.StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", got.Status)
	}
	if got.CallCount != 1 {
		t.Fatalf("callCount = %d, want 1", got.CallCount)
	}
}

func TestConfirmLoginSuccess(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusQrcode)

	stub.set("/open/checkLogin", `{"code":"1000","data":{"wxId":"wxid_abc","nickname":"助手","avatar":"https://img/a.png"}}`)

	res, err := svc.ConfirmLogin(ctx, acc.ID)
	if err != nil {
		t.Fatalf("ConfirmLogin: %v", err)
	}
	if !res.OK {
		t.Fatalf("OK = false, message %q", res.Message)
	}
	if res.Account.WxID != "wxid_abc" || res.Account.Nickname != "助手" {
		t.Fatalf("profile not recorded: %+v", res.Account)
	}
	if res.Account.Status != model.StatusOnline {
		t.Fatalf("status = %s, want online", res.Account.Status)
	}
	if res.Account.LastLoginAt.IsZero() {
		t.Fatal("lastLoginAt not set")
	}
}

func TestConfirmLoginRejected(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusQrcode)

	stub.set("/open/checkLogin", `{"code":"2001","msg":"等待扫码确认"}`)

	res, err := svc.ConfirmLogin(ctx, acc.ID)
	if err != nil {
		t.Fatalf("rejection must not be an error: %v", err)
	}
	if res.OK {
		t.Fatal("OK = true, want false")
	}
	if res.Message != "等待扫码确认" {
		t.Fatalf("message = %q", res.Message)
	}
	if res.Account.Status != model.StatusQrcode {
		t.Fatalf("status = %s, want qrcode unchanged", res.Account.Status)
	}
}

func TestLogout(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusOnline)

	ok, err := svc.Logout(ctx, acc.ID)
	if err != nil || !ok {
		t.Fatalf("Logout: ok=%v err=%v", ok, err)
	}
	got, _ := store.GetAccount(ctx, acc.ID)
	if got.Status != model.StatusDisconnected {
		t.Fatalf("status = %s, want disconnected", got.Status)
	}

	// 远端失败：返回 false 不报错，状态保持不变。
	acc2, _ := store.UpsertAccount(ctx, model.Account{DeviceID: "dev-2", Status: model.StatusOnline})
	stub.set("/open/logout", `{"code":"500","msg":"内部错误"}`)
	ok, err = svc.Logout(ctx, acc2.ID)
	if err != nil {
		t.Fatalf("remote failure must not surface: %v", err)
	}
	if ok {
		t.Fatal("ok = true, want false")
	}
	got2, _ := store.GetAccount(ctx, acc2.ID)
	if got2.Status != model.StatusOnline {
		t.Fatalf("status = %s, want online unchanged", got2.Status)
	}
}

func TestCheckOnlineStatus(t *testing.T) {
	svc, store, stub, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusOnline)

	stub.set("/open/isOnline", `{"code":"1000","data":{"online":true}}`)
	online, err := svc.CheckOnlineStatus(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CheckOnlineStatus: %v", err)
	}
	if !online {
		t.Fatal("online = false, want true")
	}

	// 只读探活不改 status，只刷新活跃时间。
	got, _ := store.GetAccount(ctx, acc.ID)
	if got.Status != model.StatusOnline {
		t.Fatalf("status = %s, want online", got.Status)
	}
	if got.LastActiveAt.IsZero() {
		t.Fatal("lastActiveAt not refreshed")
	}

	stub.set("/open/isOnline", `{"code":"1000","data":{"online":false}}`)
	online, err = svc.CheckOnlineStatus(ctx, acc.ID)
	if err != nil {
		t.Fatalf("CheckOnlineStatus: %v", err)
	}
	if online {
		t.Fatal("online = true, want false")
	}
}

func TestApplyStatusNotifies(t *testing.T) {
	svc, store, _, rec := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusOnline)

	if _, err := svc.ApplyStatus(ctx, acc, model.StatusOffline, "心跳超时"); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Status != string(model.StatusOffline) || events[0].Reason != "心跳超时" {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	// 转到 online 不提醒。
	got, _ := store.GetAccount(ctx, acc.ID)
	if _, err := svc.ApplyStatus(ctx, got, model.StatusOnline, ""); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if len(rec.all()) != 1 {
		t.Fatalf("events = %d, want still 1", len(rec.all()))
	}
}

func TestApplyStatusOutOfTableTransition(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	acc := seed(t, store, model.StatusDisconnected)

	// disconnected → pending 不在转移表里，但上游是事实来源，照样套用。
	saved, err := svc.ApplyStatus(ctx, acc, model.StatusPending, "")
	if err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if saved.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", saved.Status)
	}
}
