package model

import "time"

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
	MsgTypeFile  = "file"
)

type Message struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	DeviceID  string    `json:"deviceId"`
	MsgType   string    `json:"msgType"`
	Direction string    `json:"direction"`
	FromUser  string    `json:"fromUser,omitempty"`
	ToUser    string    `json:"toUser,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	Content   string    `json:"content,omitempty"`
	Replied   bool      `json:"replied"`
	CreatedAt time.Time `json:"createdAt"`
}
