package model

type EmailSettings struct {
	Enabled  bool   `json:"enabled"`
	Email    string `json:"email"`
	AuthCode string `json:"authCode,omitempty"`
}

type AutoReplySettings struct {
	// Enabled 控制入站文本消息是否走关键词自动回复；默认开启。
	Enabled bool `json:"enabled"`
}
