package callback

import (
	"context"
	"strings"
	"time"

	"wxassist/internal/account"
	"wxassist/internal/logbus"
	"wxassist/internal/message"
	"wxassist/internal/model"
	"wxassist/internal/store/sqlite"
)

type Options struct {
	Store    *sqlite.Store
	Accounts *account.Service
	Messages *message.Service
	Bus      *logbus.Bus
}

// Dispatcher 校验回调事件并按类型路由。每次调用无状态；
// 账号识别靠 deviceId 反查，查不到按「未处理」收场而不是报错。
type Dispatcher struct {
	store    *sqlite.Store
	accounts *account.Service
	messages *message.Service
	bus      *logbus.Bus
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		store:    opts.Store,
		accounts: opts.Accounts,
		messages: opts.Messages,
		bus:      opts.Bus,
	}
}

// Dispatch 返回 (handled, err)：校验失败返回 *ValidationError；
// 处理中的真实故障返回 err；识别不了的类型记日志并按已处理返回，
// 避免上游按失败重试刷回调。
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (bool, error) {
	if err := evt.Validate(); err != nil {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(evt.Type)) {
	case TypeMessage:
		return d.handleMessage(ctx, evt)
	case TypeLogin, TypeStatus:
		return d.handleStatus(ctx, evt)
	case TypeFriendRequest:
		d.bus.Info("好友请求回调", map[string]any{
			"deviceId": evt.DeviceID,
			"fromUser": evt.FromUser,
		})
		return true, nil
	case TypeGroupInvite:
		d.bus.Info("入群邀请回调", map[string]any{
			"deviceId": evt.DeviceID,
			"groupId":  evt.GroupID,
		})
		return true, nil
	default:
		d.bus.Info("未知回调类型", map[string]any{
			"type":     evt.Type,
			"deviceId": evt.DeviceID,
		})
		return true, nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, evt Event) (bool, error) {
	acc, err := d.store.GetAccountByDeviceID(ctx, evt.DeviceID)
	if err != nil {
		d.bus.Warn("回调找不到账号", map[string]any{"deviceId": evt.DeviceID})
		return false, nil
	}

	msgType := evt.MsgType
	if msgType == "" {
		msgType = model.MsgTypeText
	}

	saved, err := d.messages.ProcessInbound(ctx, acc, model.Message{
		DeviceID: evt.DeviceID,
		MsgType:  msgType,
		FromUser: evt.FromUser,
		ToUser:   evt.ToUser,
		GroupID:  evt.GroupID,
		Content:  evt.Content,
	})
	if err != nil {
		return false, err
	}

	// 自动回复尽力而为：任何一步失败都只记日志，回调本身照常算处理成功。
	if msgType == model.MsgTypeText && evt.FromUser != "" && d.autoReplyEnabled(ctx) {
		if reply, ok := AutoReply(evt.Content); ok {
			if _, err := d.messages.SendText(ctx, acc, evt.FromUser, reply); err != nil {
				d.bus.Warn("自动回复发送失败", map[string]any{
					"deviceId": evt.DeviceID,
					"toUser":   evt.FromUser,
					"error":    err.Error(),
				})
			} else if err := d.messages.MarkReplied(ctx, saved.ID); err != nil {
				d.bus.Warn("标记已回复失败", map[string]any{"messageId": saved.ID, "error": err.Error()})
			}
		}
	}
	return true, nil
}

func (d *Dispatcher) handleStatus(ctx context.Context, evt Event) (bool, error) {
	acc, err := d.store.GetAccountByDeviceID(ctx, evt.DeviceID)
	if err != nil {
		d.bus.Warn("回调找不到账号", map[string]any{"deviceId": evt.DeviceID})
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(evt.Status)) {
	case "success", "online":
		if evt.WxID != "" {
			acc.WxID = evt.WxID
		}
		if evt.Nickname != "" {
			acc.Nickname = evt.Nickname
		}
		if evt.Avatar != "" {
			acc.Avatar = evt.Avatar
		}
		acc.LastLoginAt = time.Now()
		if _, err := d.accounts.ApplyStatus(ctx, acc, model.StatusOnline, ""); err != nil {
			return false, err
		}
	case "logout", "offline":
		if _, err := d.accounts.ApplyStatus(ctx, acc, model.StatusOffline, "回调上报离线"); err != nil {
			return false, err
		}
	case "expired":
		if _, err := d.accounts.ApplyStatus(ctx, acc, model.StatusExpired, "回调上报登录过期"); err != nil {
			return false, err
		}
	case "scanned", "waiting":
		if _, err := d.accounts.ApplyStatus(ctx, acc, model.StatusPending, ""); err != nil {
			return false, err
		}
	default:
		// 不认识的状态串只刷新活跃时间。
		if _, err := d.accounts.Touch(ctx, acc); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (d *Dispatcher) autoReplyEnabled(ctx context.Context) bool {
	settings, ok, err := d.store.GetAutoReplySettings(ctx)
	if err != nil {
		d.bus.Warn("读取自动回复配置失败", map[string]any{"error": err.Error()})
		return false
	}
	if !ok {
		return true
	}
	return settings.Enabled
}
