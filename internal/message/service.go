package message

import (
	"context"
	"errors"
	"time"

	"wxassist/internal/logbus"
	"wxassist/internal/model"
	"wxassist/internal/store/sqlite"
	"wxassist/internal/wxapi"
)

type Options struct {
	Store *sqlite.Store
	API   *wxapi.Client
	Bus   *logbus.Bus
}

// Service 负责消息的持久化和外发：入站消息来自回调，出站消息走上游 sendText。
type Service struct {
	store *sqlite.Store
	api   *wxapi.Client
	bus   *logbus.Bus
}

func New(opts Options) *Service {
	return &Service{store: opts.Store, api: opts.API, bus: opts.Bus}
}

// ProcessInbound 持久化一条入站消息并返回落库后的记录。
func (s *Service) ProcessInbound(ctx context.Context, acc model.Account, msg model.Message) (model.Message, error) {
	msg.AccountID = acc.ID
	if msg.DeviceID == "" {
		msg.DeviceID = acc.DeviceID
	}
	msg.Direction = model.DirectionInbound
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	return s.store.InsertMessage(ctx, msg)
}

// SendText 通过上游给 toUser 发一条文本，并把出站记录落库。
func (s *Service) SendText(ctx context.Context, acc model.Account, toUser, content string) (model.Message, error) {
	if toUser == "" {
		return model.Message{}, errors.New("toUser is required")
	}
	if content == "" {
		return model.Message{}, errors.New("content is required")
	}

	_, updated, err := s.api.Invoke(ctx, acc, wxapi.Request{
		Endpoint: wxapi.EpSendText,
		JSON: map[string]any{
			"deviceId": acc.DeviceID,
			"toUser":   toUser,
			"content":  content,
		},
	})
	// 发送成败都要把调用记账落回去。
	if _, perr := s.store.UpsertAccount(ctx, updated); perr != nil && s.bus != nil {
		s.bus.Warn("账号记账落库失败", map[string]any{"accountId": acc.ID, "error": perr.Error()})
	}
	if err != nil {
		return model.Message{}, err
	}

	return s.store.InsertMessage(ctx, model.Message{
		AccountID: acc.ID,
		DeviceID:  acc.DeviceID,
		MsgType:   model.MsgTypeText,
		Direction: model.DirectionOutbound,
		FromUser:  acc.WxID,
		ToUser:    toUser,
		Content:   content,
	})
}

func (s *Service) MarkReplied(ctx context.Context, id string) error {
	return s.store.MarkMessageReplied(ctx, id)
}

func (s *Service) List(ctx context.Context, accountID string, limit int) ([]model.Message, error) {
	return s.store.ListMessages(ctx, accountID, limit)
}
