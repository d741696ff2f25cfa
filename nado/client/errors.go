package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError 交易所返回的结构化拒绝（status=failure）
type APIError struct {
	Request string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("nado %s rejected (code %d): %s", e.Request, e.Code, e.Message)
	}
	return fmt.Sprintf("nado %s rejected: %s", e.Request, e.Message)
}

// NetworkError 网络或超时错误。Submitted 表示请求可能已到达交易所。
type NetworkError struct {
	Op        string
	Timeout   bool
	Submitted bool
	Err       error
}

func (e *NetworkError) Error() string {
	kind := "network error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("nado %s: %s: %v", e.Op, kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError 非 2xx 且无法解析为业务响应
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("nado %s: http status %d: %s", e.Op, e.Status, truncate(e.Body, 256))
}

// IsTimeout 判断是否为超时
func IsTimeout(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Timeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRejection 判断是否为交易所拒绝
func IsRejection(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

func classifyTransportErr(op string, err error, submitted bool) error {
	if err == nil {
		return nil
	}
	ne := &NetworkError{Op: op, Submitted: submitted, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		ne.Timeout = true
	case errors.As(err, &netErr) && netErr.Timeout():
		ne.Timeout = true
	case strings.Contains(strings.ToLower(err.Error()), "timeout"):
		ne.Timeout = true
	}
	return ne
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
