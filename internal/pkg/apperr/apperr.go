// Package apperr 定义业务错误分类，handler 层据此映射 HTTP 状态码。
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind 错误类别
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConflict
	KindForbidden
	KindExternal
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindExternal:
		return "external"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Error 带类别的业务错误，Message 可直接返回给客户端
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCode 设置业务码
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func BusinessRule(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// External 外部服务（物流、邮件）失败，调用方记录日志后吞掉
func External(err error, msg string) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// Persistence 存储写入失败，请求整体失败
func Persistence(err error, msg string) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// KindOf 返回错误类别，非 *Error 视为 KindInternal
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
