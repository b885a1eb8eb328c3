package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wxassist/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	saved, err := store.UpsertAccount(ctx, model.Account{
		Name:      "测试账号",
		DeviceID:  "dev-1",
		BaseURL:   "https://api.example.com",
		Token:     "tok",
		TimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("id not assigned")
	}
	if saved.Status != model.StatusDisconnected {
		t.Fatalf("status = %s, want disconnected default", saved.Status)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	got, err := store.GetAccount(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "测试账号" || got.BaseURL != "https://api.example.com" || got.TimeoutMs != 5000 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.LastLoginAt.IsZero() {
		t.Fatal("lastLoginAt should stay zero")
	}

	byDevice, err := store.GetAccountByDeviceID(ctx, "dev-1")
	if err != nil || byDevice.ID != saved.ID {
		t.Fatalf("by device: %+v err=%v", byDevice, err)
	}
}

func TestAccountUpsertByDeviceID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertAccount(ctx, model.Account{DeviceID: "dev-1", Name: "旧名字"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// 同 deviceId 再写一次是更新，不产生新行。
	first.Name = "新名字"
	first.Status = model.StatusOnline
	first.CallCount = 3
	first.WxID = "wxid_x"
	first.LastLoginAt = time.Now()
	second, err := store.UpsertAccount(ctx, first)
	if err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("id changed: %s -> %s", first.ID, second.ID)
	}
	if second.Name != "新名字" || second.Status != model.StatusOnline || second.CallCount != 3 {
		t.Fatalf("update not applied: %+v", second)
	}
	if second.LastLoginAt.IsZero() {
		t.Fatal("lastLoginAt lost")
	}

	all, err := store.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("accounts = %d, want 1", len(all))
	}
}

func TestAccountMissingDeviceID(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.UpsertAccount(context.Background(), model.Account{Name: "无设备"}); err == nil {
		t.Fatal("expected error for missing deviceId")
	}
}

func TestDeleteAccount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	acc, err := store.UpsertAccount(ctx, model.Account{DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAccount(ctx, acc.ID); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	acc, err := store.UpsertAccount(ctx, model.Account{DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("upsert account: %v", err)
	}

	msg, err := store.InsertMessage(ctx, model.Message{
		AccountID: acc.ID,
		DeviceID:  acc.DeviceID,
		Direction: model.DirectionInbound,
		FromUser:  "wxid_friend",
		Content:   "你好",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("id not assigned")
	}
	if msg.MsgType != model.MsgTypeText {
		t.Fatalf("msgType = %s, want text default", msg.MsgType)
	}

	if err := store.MarkMessageReplied(ctx, msg.ID); err != nil {
		t.Fatalf("mark replied: %v", err)
	}

	msgs, err := store.ListMessages(ctx, acc.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if !msgs[0].Replied {
		t.Fatal("replied flag not set")
	}
	if msgs[0].Content != "你好" || msgs[0].FromUser != "wxid_friend" {
		t.Fatalf("round trip mismatch: %+v", msgs[0])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// 没写过时返回 ok=false。
	if _, ok, err := store.GetEmailSettings(ctx); err != nil || ok {
		t.Fatalf("empty email settings: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetAutoReplySettings(ctx); err != nil || ok {
		t.Fatalf("empty autoreply settings: ok=%v err=%v", ok, err)
	}

	if _, err := store.UpsertEmailSettings(ctx, model.EmailSettings{
		Enabled:  true,
		Email:    "ops@example.com",
		AuthCode: "secret",
	}); err != nil {
		t.Fatalf("upsert email: %v", err)
	}
	email, ok, err := store.GetEmailSettings(ctx)
	if err != nil || !ok {
		t.Fatalf("get email: ok=%v err=%v", ok, err)
	}
	if !email.Enabled || email.Email != "ops@example.com" {
		t.Fatalf("email round trip mismatch: %+v", email)
	}

	if _, err := store.UpsertAutoReplySettings(ctx, model.AutoReplySettings{Enabled: false}); err != nil {
		t.Fatalf("upsert autoreply: %v", err)
	}
	ar, ok, err := store.GetAutoReplySettings(ctx)
	if err != nil || !ok {
		t.Fatalf("get autoreply: ok=%v err=%v", ok, err)
	}
	if ar.Enabled {
		t.Fatal("autoreply enabled = true, want false")
	}
}
