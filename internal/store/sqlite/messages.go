package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"wxassist/internal/model"
)

const messageColumns = `id, account_id, device_id, msg_type, direction, from_user, to_user, group_id, content, replied, created_at`

func (s *Store) InsertMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if msg.AccountID == "" {
		return model.Message{}, errors.New("accountId is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.MsgType == "" {
		msg.MsgType = model.MsgTypeText
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, account_id, device_id, msg_type, direction, from_user, to_user, group_id, content, replied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.AccountID, msg.DeviceID, msg.MsgType, msg.Direction, msg.FromUser, msg.ToUser, msg.GroupID,
		msg.Content, boolToInt(msg.Replied), msg.CreatedAt.UnixMilli())
	if err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (s *Store) MarkMessageReplied(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET replied = 1 WHERE id = ?`, id)
	return err
}

func (s *Store) ListMessages(ctx context.Context, accountID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE account_id = ? ORDER BY created_at DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			msg       model.Message
			replied   int
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.AccountID, &msg.DeviceID, &msg.MsgType, &msg.Direction,
			&msg.FromUser, &msg.ToUser, &msg.GroupID, &msg.Content, &replied, &createdAt); err != nil {
			return nil, err
		}
		msg.Replied = replied != 0
		msg.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
