package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "decode"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示上游返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// DecodeError 表示 2xx 响应体不是合法的评测分页 JSON。
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return "响应体解码失败"
	}
	return "响应体解码失败：" + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RejectedError 表示上游明确拒绝了请求（例如 success!=1）。
// 不尝试绕过，按一次失败计入重试。
type RejectedError struct {
	URL    string
	Reason string
}

func (e *RejectedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "rejected"
	}
	return "rejected: " + strings.TrimSpace(e.Reason)
}

// StatusCode 返回 err 链上的 HTTP 状态码；没有则返回 0。
func StatusCode(err error) int {
	var he *HTTPStatusError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
