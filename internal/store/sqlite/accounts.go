package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"wxassist/internal/model"
)

const accountColumns = `id, name, device_id, base_url, token, proxy, timeout_ms, status, call_count,
	wx_id, nickname, avatar, last_login_at, last_active_at, created_at, updated_at`

func (s *Store) UpsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.DeviceID == "" {
		return model.Account{}, errors.New("deviceId is required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.Status == "" {
		acc.Status = model.StatusDisconnected
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, device_id, base_url, token, proxy, timeout_ms, status, call_count,
			wx_id, nickname, avatar, last_login_at, last_active_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			base_url = excluded.base_url,
			token = excluded.token,
			proxy = excluded.proxy,
			timeout_ms = excluded.timeout_ms,
			status = excluded.status,
			call_count = excluded.call_count,
			wx_id = excluded.wx_id,
			nickname = excluded.nickname,
			avatar = excluded.avatar,
			last_login_at = excluded.last_login_at,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at
	`, acc.ID, acc.Name, acc.DeviceID, acc.BaseURL, acc.Token, acc.Proxy, acc.TimeoutMs, string(acc.Status), acc.CallCount,
		acc.WxID, acc.Nickname, acc.Avatar, unixMilliOrZero(acc.LastLoginAt), unixMilliOrZero(acc.LastActiveAt),
		acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Account{}, err
	}

	return s.GetAccountByDeviceID(ctx, acc.DeviceID)
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByDeviceID(ctx context.Context, deviceID string) (model.Account, error) {
	if deviceID == "" {
		return model.Account{}, errors.New("deviceId is required")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE device_id = ?`, deviceID)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(r rowScanner) (model.Account, error) {
	var (
		acc          model.Account
		status       string
		lastLoginAt  int64
		lastActiveAt int64
		createdAt    int64
		updatedAt    int64
	)
	err := r.Scan(&acc.ID, &acc.Name, &acc.DeviceID, &acc.BaseURL, &acc.Token, &acc.Proxy, &acc.TimeoutMs,
		&status, &acc.CallCount, &acc.WxID, &acc.Nickname, &acc.Avatar,
		&lastLoginAt, &lastActiveAt, &createdAt, &updatedAt)
	if err != nil {
		return model.Account{}, err
	}
	acc.Status = model.AccountStatus(status)
	acc.LastLoginAt = timeOrZero(lastLoginAt)
	acc.LastActiveAt = timeOrZero(lastActiveAt)
	acc.CreatedAt = time.UnixMilli(createdAt)
	acc.UpdatedAt = time.UnixMilli(updatedAt)
	return acc, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeOrZero(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
