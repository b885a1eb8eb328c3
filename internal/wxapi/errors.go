package wxapi

import (
	"errors"
	"fmt"
)

// ErrNoBaseURL 表示账号和全局配置都没有可用的上游地址。
var ErrNoBaseURL = errors.New("wxapi: no usable base url")

// InvalidResponseError 表示上游返回了无法按 JSON 解析的响应体。
type InvalidResponseError struct {
	Err error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("wxapi: invalid response body: %v", e.Err)
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// APIError 是上游信封里报告的业务失败，保留原始 code 和 message。
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wxapi: upstream code %s: %s", e.Code, e.Message)
}

// LoginError 包装登录流程里的远端调用失败。
type LoginError struct {
	Op  string
	Err error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("wxapi: login %s failed: %v", e.Op, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

// authFailureCodes 命中后账号会被标记为 error 状态。
var authFailureCodes = map[string]struct{}{
	"401":         {},
	"403":         {},
	"AUTH_FAILED": {},
}

func isAuthFailure(code string) bool {
	_, ok := authFailureCodes[code]
	return ok
}
