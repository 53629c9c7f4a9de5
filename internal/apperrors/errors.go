// Package apperrors defines the error kinds surfaced by the task engine.
//
// Every precondition failure inside the engine is an *Error carrying a Kind.
// Transport layers map the kind to a status code; callers recover it with
// KindOf regardless of how many times the error was wrapped.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind machine-readable error category
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindUnauthorized      Kind = "Unauthorized"
	KindForbidden         Kind = "Forbidden"
	KindInvalidState      Kind = "InvalidState"
	KindValidation        Kind = "ValidationError"
	KindSettlementFailure Kind = "SettlementFailure"
	KindCodec             Kind = "CodecError"
	KindStoreUnavailable  Kind = "StoreUnavailable"
	KindConflict          Kind = "Conflict"
	KindInternal          Kind = "Internal"
)

// Error kinded application error
type Error struct {
	Kind    Kind
	Message string
	// Fields per-field detail for validation failures
	Fields map[string]string
	Err    error
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

// New create error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attach a kind to an underlying error
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

func InvalidState(format string, args ...interface{}) *Error {
	return New(KindInvalidState, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func Codec(format string, args ...interface{}) *Error {
	return New(KindCodec, format, args...)
}

// Validation create a validation error with per-field details
func Validation(fields map[string]string, format string, args ...interface{}) *Error {
	e := New(KindValidation, format, args...)
	e.Fields = fields
	return e
}

// FieldError shorthand for a validation error on a single field
func FieldError(field, reason string) *Error {
	return Validation(map[string]string{field: reason}, "invalid %s", field)
}

func Settlement(err error, format string, args ...interface{}) *Error {
	return Wrap(KindSettlementFailure, err, format, args...)
}

func StoreUnavailable(err error, format string, args ...interface{}) *Error {
	return Wrap(KindStoreUnavailable, err, format, args...)
}

func Internal(err error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf returns the kind of the first *Error in the chain.
// Errors that carry no kind are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus status code for a kind
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindValidation, KindCodec:
		return http.StatusBadRequest
	case KindSettlementFailure:
		return http.StatusBadGateway
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
