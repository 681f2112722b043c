package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 引擎对外的错误分类，由 HandleError 映射成 HTTP 状态码
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindForbidden
	KindBadRequest
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindBadRequest:
		return "BadRequest"
	case KindConflict:
		return "Conflict"
	}
	return "Unknown"
}

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type AppError struct {
	Kind    ErrorKind
	Message string
	Details interface{}
}

func (e *AppError) Error() string {
	return e.Message
}

// Is 同类错误视为相等，方便 errors.Is(err, util.ErrConflict)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// 用于 errors.Is 比较的哨兵值
var (
	ErrNotFound   = &AppError{Kind: KindNotFound}
	ErrForbidden  = &AppError{Kind: KindForbidden}
	ErrBadRequest = &AppError{Kind: KindBadRequest}
	ErrConflict   = &AppError{Kind: KindConflict}
)

func NotFoundf(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func BadRequestf(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// WithDetails 附带结构化信息，例如缺失的前置课程列表
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// KindOf 非 AppError 返回 0
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}
