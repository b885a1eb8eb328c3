package callback

import "strings"

const (
	TypeMessage       = "message"
	TypeLogin         = "login"
	TypeStatus        = "status"
	TypeFriendRequest = "friend_request"
	TypeGroupInvite   = "group_invite"
)

// Event 是上游回调的最小公共形状：声明的 type、必须携带的 deviceId，
// 以及按类型取用的伴随字段。
type Event struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`

	// message
	MsgType  string `json:"msgType,omitempty"`
	Content  string `json:"content,omitempty"`
	FromUser string `json:"fromUser,omitempty"`
	ToUser   string `json:"toUser,omitempty"`
	GroupID  string `json:"groupId,omitempty"`

	// login / status
	Status   string `json:"status,omitempty"`
	WxID     string `json:"wxId,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ValidationError 表示回调缺少必要字段，webhook 边界把它映射成 400。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "callback: " + e.Reason
}

// Validate 先查 deviceId，再按声明类型查最小伴随字段；没见过的类型不做校验。
func (e Event) Validate() error {
	if strings.TrimSpace(e.DeviceID) == "" {
		return &ValidationError{Reason: "deviceId is required"}
	}
	switch strings.ToLower(strings.TrimSpace(e.Type)) {
	case TypeMessage:
		if e.FromUser == "" && e.ToUser == "" {
			return &ValidationError{Reason: "message requires fromUser or toUser"}
		}
	case TypeFriendRequest:
		if e.FromUser == "" {
			return &ValidationError{Reason: "friend_request requires fromUser"}
		}
	case TypeGroupInvite:
		if e.GroupID == "" {
			return &ValidationError{Reason: "group_invite requires groupId"}
		}
	}
	return nil
}
