// Package apperr defines the caller-visible failure taxonomy shared by the
// services and the request layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Each kind maps to exactly one HTTP status in the
// request layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindDependency
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "internal"
	}
}

// Stable codes returned to callers. Localized texts are keyed by these.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeTextOrImage        = "TEXT_OR_IMAGE_REQUIRED"
	CodeInvalidImage       = "INVALID_IMAGE"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeProfilePicRequired = "PROFILE_PIC_REQUIRED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeForbidden          = "FORBIDDEN"
	CodeMessageNotFound    = "MESSAGE_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUnavailable        = "SERVICE_UNAVAILABLE"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a classified failure. Message is safe to show to callers; Err holds
// the underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Code    string
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

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrDependency     = &Error{Kind: KindDependency}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
)

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Authentication(code, msg string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: msg}
}

func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeForbidden, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

// Dependency wraps a store or asset-store failure. The cause is kept for logs
// and never rendered.
func Dependency(op string, err error) *Error {
	return &Error{Kind: KindDependency, Code: CodeUnavailable, Message: op + " unavailable", Err: err}
}

func RateLimit() *Error {
	return &Error{Kind: KindRateLimit, Code: CodeTooManyRequests, Message: "too many requests"}
}

// KindOf reports the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From returns err as *Error, wrapping unclassified errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal server error", Err: err}
}
