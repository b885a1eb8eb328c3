package model

type AccountStatus string

const (
	StatusDisconnected AccountStatus = "disconnected"
	StatusQrcode       AccountStatus = "qrcode"
	StatusPending      AccountStatus = "pending"
	StatusOnline       AccountStatus = "online"
	StatusOffline      AccountStatus = "offline"
	StatusExpired      AccountStatus = "expired"
	StatusError        AccountStatus = "error"
)

// StatusAny 是转移表里的通配起点。
const StatusAny AccountStatus = "*"

// transitions 按目标状态列出允许的起始状态。上游系统才是登录状态的事实来源，
// 回调可能乱序到达，所以 online/offline/expired/error 允许从任意状态进入；
// 表之外的转移不会被拒绝，只会被记一条 warn 日志（见 account.Service.applyStatus）。
var transitions = map[AccountStatus][]AccountStatus{
	StatusQrcode:       {StatusDisconnected, StatusOffline, StatusExpired, StatusError},
	StatusPending:      {StatusQrcode},
	StatusOnline:       {StatusAny},
	StatusOffline:      {StatusAny},
	StatusExpired:      {StatusAny},
	StatusError:        {StatusAny},
	StatusDisconnected: {StatusOnline, StatusOffline},
}

// CanTransition 判断 from → to 是否在转移表内。
func CanTransition(from, to AccountStatus) bool {
	allowed, ok := transitions[to]
	if !ok {
		return false
	}
	for _, f := range allowed {
		if f == StatusAny || f == from {
			return true
		}
	}
	return false
}

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusQrcode, StatusPending, StatusOnline, StatusOffline, StatusExpired, StatusError:
		return true
	}
	return false
}

// Terminal 表示不会再由本地操作推进、只能被回调或重新登录改变的状态。
func (s AccountStatus) Terminal() bool {
	return s == StatusExpired || s == StatusError
}
