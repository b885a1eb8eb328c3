package notify

import "context"

// AccountEvent 在账号掉线/过期/出错时发出，汇总后通过邮件提醒运营者。
type AccountEvent struct {
	At        int64  `json:"atMs"`
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type Notifier interface {
	NotifyAccountStatus(ctx context.Context, evt AccountEvent)
}
