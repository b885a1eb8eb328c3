package wxapi

import (
	"encoding/json"
	"strconv"

	"wxassist/internal/model"
)

// successCode 是上游信封里唯一的成功哨兵值，字符串 "1000" 或数字 1000 都算。
const successCode = "1000"

// Envelope 是上游每个响应共用的外层结构：{code, message|msg, data}。
// data 不做进一步解释，由调用方按各自接口的形状解析。
type Envelope struct {
	Code    any             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// CodeString 把 code 归一成字符串；数字 1000 和 "1000" 归一后相同。
func (e Envelope) CodeString() string {
	switch v := e.Code.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func (e Envelope) Success() bool {
	return e.CodeString() == successCode
}

// ErrorMessage 取失败信息：message → msg → 固定兜底。
func (e Envelope) ErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "unknown error"
}

// DecodeEnvelope 解析上游响应体并做账号记账，返回更新后的账号值由调用方落库：
//   - 响应体不是 JSON：原账号不动，返回 InvalidResponseError；
//   - 解析成功：调用计数 +1（成功失败都算一次调用）；
//   - code 非 1000：命中鉴权失败码时先把账号标成 error，再返回 APIError。
func DecodeEnvelope(body []byte, acc model.Account) (Envelope, model.Account, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, acc, &InvalidResponseError{Err: err}
	}

	updated := acc
	updated.CallCount++

	if env.Success() {
		return env, updated, nil
	}

	code := env.CodeString()
	if isAuthFailure(code) {
		updated.Status = model.StatusError
	}
	return env, updated, &APIError{Code: code, Message: env.ErrorMessage()}
}
