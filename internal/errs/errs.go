// Package errs defines the error kinds surfaced by chat operations.
package errs

import (
	"errors"
	"fmt"
)

// Unauthenticated is returned when an operation requires a caller identity.
var Unauthenticated = NewUnauthenticatedError("authentication required")

// Kind classifies an Error for transports.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindUnauthenticated Kind = "unauthenticated"
	KindTooLarge        Kind = "too_large"
	KindUnsupported     Kind = "unsupported_media"
	KindUnavailable     Kind = "unavailable"
)

// Error is a classified failure with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Field   *string
	cause   error
}

func NewInvalidArgumentError(field, message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message, Field: &field}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NewConflictError(field, message string) *Error {
	return &Error{Kind: KindConflict, Message: message, Field: &field}
}

func NewUnauthenticatedError(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func NewTooLargeError(field, message string) *Error {
	return &Error{Kind: KindTooLarge, Message: message, Field: &field}
}

func NewUnsupportedError(field, message string) *Error {
	return &Error{Kind: KindUnsupported, Message: message, Field: &field}
}

// NewUnavailableError wraps a backend failure. The cause is kept for logs
// and errors.Is but never shown to clients.
func NewUnavailableError(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, cause: cause}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != nil {
		s = fmt.Sprintf("%s (field: %s): %s", e.Kind, *e.Field, e.Message)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }
func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool       { return KindOf(err) == KindForbidden }
func IsConflict(err error) bool        { return KindOf(err) == KindConflict }
func IsUnavailable(err error) bool     { return KindOf(err) == KindUnavailable }
