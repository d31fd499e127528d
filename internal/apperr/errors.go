// Package apperr defines the error taxonomy shared by services and handlers.
//
// Every error that reaches a client carries a Kind (how the transport should
// treat it) and a stable Code (what the client can switch on).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindAuthorization Kind = "authorization"
	KindConflict      Kind = "conflict"
	KindRateLimited   Kind = "rate_limited"
	KindInternal      Kind = "internal"
)

// Stable error codes surfaced to API consumers.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeDepthExceeded     = "DEPTH_EXCEEDED"
	CodePollClosed        = "POLL_CLOSED"
	CodeInvalidOption     = "INVALID_OPTION"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that sentinel values below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is checks. Use the constructors to attach a message.
var (
	ErrValidation        = &Error{Kind: KindValidation, Code: CodeValidation, Message: "invalid input"}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized      = &Error{Kind: KindAuthorization, Code: CodeUnauthorized, Message: "sign in required"}
	ErrForbidden         = &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: "not allowed"}
	ErrDepthExceeded     = &Error{Kind: KindValidation, Code: CodeDepthExceeded, Message: "reply nesting too deep"}
	ErrPollClosed        = &Error{Kind: KindConflict, Code: CodePollClosed, Message: "poll has closed"}
	ErrInvalidOption     = &Error{Kind: KindValidation, Code: CodeInvalidOption, Message: "poll option out of range"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Code: CodeInvalidTransition, Message: "moderation transition not allowed"}
	ErrRateLimited       = &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: "too many requests"}
	ErrInternal          = &Error{Kind: KindInternal, Code: CodeInternal, Message: "something went wrong"}
)

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found"}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

func DepthExceeded(maxDepth int) *Error {
	return &Error{Kind: KindValidation, Code: CodeDepthExceeded, Message: fmt.Sprintf("replies may nest at most %d levels", maxDepth)}
}

func InvalidOption(index, count int) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidOption, Message: fmt.Sprintf("option %d is out of range (poll has %d options)", index, count)}
}

func InvalidTransition(from, action string) *Error {
	return &Error{Kind: KindConflict, Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot %s a record that is %s", action, from)}
}

// Internal wraps an unexpected error. The wrapped error is kept for logs only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "something went wrong", Err: err}
}

// From converts any error to *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus maps an error to the status code the transport should return.
func HTTPStatus(err error) int {
	e := From(err)
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		if e.Code == CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
