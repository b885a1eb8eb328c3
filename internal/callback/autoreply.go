package callback

import (
	"strings"
	"time"
)

const (
	greetingReply = "你好！很高兴收到您的消息。"
	helpReply     = "您好，这里是群助手。回复 time 查看当前时间，回复 hello 打个招呼。"
)

// AutoReply 对入站纯文本做固定关键词匹配：小写、去首尾空白后精确比对。
// 命中返回应答内容，否则 ok=false。
func AutoReply(content string) (reply string, ok bool) {
	text := strings.ToLower(strings.TrimSpace(content))
	switch text {
	case "hello", "你好":
		return greetingReply, true
	case "help", "帮助":
		return helpReply, true
	case "time", "时间":
		return "当前时间：" + time.Now().Format("2006-01-02 15:04:05"), true
	}
	return "", false
}
