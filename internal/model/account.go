package model

import "time"

type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	DeviceID string `json:"deviceId"`
	BaseURL  string `json:"baseUrl"`
	Token    string `json:"token,omitempty"`
	Proxy    string `json:"proxy,omitempty"`
	// TimeoutMs 是该账号单次上游调用的超时；<=0 时回退到 upstream 配置的默认值。
	TimeoutMs int `json:"timeoutMs,omitempty"`

	Status    AccountStatus `json:"status"`
	CallCount int64         `json:"callCount"`

	// 登录成功后由上游回填的资料字段。
	WxID     string `json:"wxId,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`

	LastLoginAt  time.Time `json:"lastLoginAt,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Timeout 返回该账号的单次调用超时；没配置时返回 0，由调用方决定默认值。
func (a Account) Timeout() time.Duration {
	if a.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutMs) * time.Millisecond
}
