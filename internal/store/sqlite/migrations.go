package sqlite

import (
	"context"
	"fmt"
)

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL UNIQUE,
			base_url TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL DEFAULT '',
			proxy TEXT NOT NULL DEFAULT '',
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'disconnected',
			call_count INTEGER NOT NULL DEFAULT 0,
			wx_id TEXT NOT NULL DEFAULT '',
			nickname TEXT NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT '',
			last_login_at INTEGER NOT NULL DEFAULT 0,
			last_active_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			device_id TEXT NOT NULL DEFAULT '',
			msg_type TEXT NOT NULL DEFAULT 'text',
			direction TEXT NOT NULL,
			from_user TEXT NOT NULL DEFAULT '',
			to_user TEXT NOT NULL DEFAULT '',
			group_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			replied INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_account_created
			ON messages (account_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value_json TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
