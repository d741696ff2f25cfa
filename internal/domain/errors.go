package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误分类
type Kind string

const (
	KindValidation      Kind = "validation"
	KindSigning         Kind = "signing"
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindRemoteRejection Kind = "remote_rejection"
	KindDrift           Kind = "reconciliation_drift"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Error 带分类的领域错误
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	// Remote 交易所原始拒绝信息（仅 RemoteRejection）
	Remote string
	Code   int
	// Submitted 请求已发出，交易所可能已经处理
	Submitted bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Remote != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Remote
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause 兼容 pkg/errors
func (e *Error) Cause() error { return e.Err }

// Validationf 本地校验失败，不会发起任何网络请求
func Validationf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf 记录不存在
func NotFoundf(op, format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 以指定分类包装错误
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Rejection 交易所拒绝
func Rejection(op, remote string, code int) error {
	return &Error{Kind: KindRemoteRejection, Op: op, Remote: remote, Code: code}
}

// KindOf 返回错误分类，非领域错误返回 KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind 判断错误分类
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// WasSubmitted 错误发生在请求发出之后
func WasSubmitted(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Submitted
}

// IsRemote 错误来自网络或交易所，而不是本地校验
func IsRemote(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRemoteRejection:
		return true
	}
	return false
}

// RemoteMessage 返回交易所原始拒绝信息
func RemoteMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Remote
	}
	return ""
}
