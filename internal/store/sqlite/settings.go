package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"wxassist/internal/model"
)

const (
	emailSettingsKey     = "email_settings"
	autoReplySettingsKey = "autoreply_settings"
)

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getSetting(ctx, emailSettingsKey, &out)
	return out, ok, err
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	if err := s.upsertSetting(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}

func (s *Store) GetAutoReplySettings(ctx context.Context) (model.AutoReplySettings, bool, error) {
	var out model.AutoReplySettings
	ok, err := s.getSetting(ctx, autoReplySettingsKey, &out)
	return out, ok, err
}

func (s *Store) UpsertAutoReplySettings(ctx context.Context, v model.AutoReplySettings) (model.AutoReplySettings, error) {
	if err := s.upsertSetting(ctx, autoReplySettingsKey, v); err != nil {
		return model.AutoReplySettings{}, err
	}
	return v, nil
}

func (s *Store) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) upsertSetting(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}
