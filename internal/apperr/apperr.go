// Package apperr defines the typed error taxonomy surfaced at the request boundary.
package apperr

import (
	"errors"
	"fmt"
	"log"
)

// Kind classifies a failure.
type Kind string

const (
	Authentication Kind = "AUTHENTICATION"
	Authorization  Kind = "AUTHORIZATION"
	StateConflict  Kind = "STATE_CONFLICT"
	RateLimit      Kind = "RATE_LIMIT"
	NotFound       Kind = "NOT_FOUND"
	Integrity      Kind = "INTEGRITY"
	Invalid        Kind = "INVALID"
)

// Error is a user-safe failure with a kind. Cause, when set, is kept for
// logs and errors.Is/As but never shown to callers.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrRateLimited)
// works for any rate-limit failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrUnauthenticated = &Error{Kind: Authentication}
	ErrForbidden       = &Error{Kind: Authorization}
	ErrConflict        = &Error{Kind: StateConflict}
	ErrRateLimited     = &Error{Kind: RateLimit}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrIntegrity       = &Error{Kind: Integrity}
	ErrInvalid         = &Error{Kind: Invalid}
)

// New returns an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind carrying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Forbidden is shorthand for an Authorization error.
func Forbidden(format string, args ...interface{}) *Error {
	return New(Authorization, format, args...)
}

// Conflict is shorthand for a StateConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return New(StateConflict, format, args...)
}

// Missing is shorthand for a NotFound error.
func Missing(format string, args ...interface{}) *Error {
	return New(NotFound, format, args...)
}

// Broken reports a violated invariant. It is logged as an alert immediately.
func Broken(format string, args ...interface{}) *Error {
	e := New(Integrity, format, args...)
	log.Printf("ALERT integrity: %s", e.Message)
	return e
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-safe message for err. Integrity failures and
// untyped errors get a generic message.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Integrity {
		return e.Message
	}
	return "internal error"
}
