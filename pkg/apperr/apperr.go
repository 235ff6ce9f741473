// Package apperr 定义业务错误的分类，服务层返回 *Error，处理器按 Kind 渲染响应
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuth              Kind = "auth"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindValidation        Kind = "validation"
	KindInvalidTransition Kind = "invalid_transition"
	KindDuplicateApproval Kind = "duplicate_approval"
	KindStaleState        Kind = "stale_state"
	KindStorage           Kind = "storage"
)

// Error 业务错误，Message 直接展示给用户
type Error struct {
	Kind    Kind
	Message string
	Role    string // DuplicateApproval 时为重复的角色
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Auth(message string) *Error {
	return New(KindAuth, message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

func DuplicateApproval(role string) *Error {
	return &Error{
		Kind:    KindDuplicateApproval,
		Message: fmt.Sprintf("「%s」は既に承認済みです。", role),
		Role:    role,
	}
}

func StaleState(message string) *Error {
	return New(KindStaleState, message)
}

// Storage 包装记录存储或文件存储的故障
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf 返回错误分类，非 *Error 视为存储故障
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// Is 判断错误是否属于指定分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
