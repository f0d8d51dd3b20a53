// Package apperr 定义业务层错误分类，API 层据此映射 HTTP 状态码。
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Kind 错误类别。
type Kind int

const (
	// KindBusiness 业务规则失败（验证码过期、重发次数超限等），400。
	KindBusiness Kind = iota + 1
	// KindCredentials 登录凭证错误，400。
	KindCredentials
	// KindLookup 按标识查找用户失败，400。
	KindLookup
	// KindUnauthorized token 无效或过期，401。
	KindUnauthorized
	// KindNotFound 直接访问的对象不存在（或不属于当前用户），404。
	KindNotFound
)

// Error 带类别的业务错误，可直接展示给客户端。
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Status 返回对应的 HTTP 状态码。
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Business 创建业务规则错误。
func Business(code, msg string) *Error { return newError(KindBusiness, code, msg) }

// Credentials 创建凭证错误。
func Credentials(code, msg string) *Error { return newError(KindCredentials, code, msg) }

// Lookup 创建按标识查找失败的错误。
func Lookup(code, msg string) *Error { return newError(KindLookup, code, msg) }

// Unauthorized 创建 token 相关错误。
func Unauthorized(code, msg string) *Error { return newError(KindUnauthorized, code, msg) }

// NotFound 创建对象不存在错误。
func NotFound(code, msg string) *Error { return newError(KindNotFound, code, msg) }

// As 提取 *Error。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// FieldErrors 字段级校验错误：字段名 -> 错误信息列表。
type FieldErrors map[string][]string

// Add 追加一条字段错误。
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Merge 合并另一组字段错误。
func (f FieldErrors) Merge(other FieldErrors) {
	for field, msgs := range other {
		f[field] = append(f[field], msgs...)
	}
}

// Empty 是否没有错误。
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Err 无错误时返回 nil，避免 typed-nil 被当作非空 error。
func (f FieldErrors) Err() error {
	if f.Empty() {
		return nil
	}
	return f
}

func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(f[field], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// AsFieldErrors 提取 FieldErrors。
func AsFieldErrors(err error) (FieldErrors, bool) {
	var f FieldErrors
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
