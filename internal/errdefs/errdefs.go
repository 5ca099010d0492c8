// Package errdefs defines the gateway error taxonomy. Every failure a
// handler can report maps to exactly one Kind, and every Kind maps to one
// HTTP status, so callers see deterministic statuses regardless of which
// component produced the failure.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindInternal is an unexpected fault. Details are logged, never leaked.
	KindInternal Kind = iota
	// KindValidation is a malformed or incomplete request.
	KindValidation
	// KindNotFound is a referenced workspace path that does not exist.
	KindNotFound
	// KindConflict is an add onto an existing path without overwrite.
	KindConflict
	// KindEditMismatch is a replacement anchor that matched zero or multiple
	// regions; it always blocks the whole edit commit.
	KindEditMismatch
	// KindUpstream is a model host failure, surfaced without retry.
	KindUpstream
)

// String returns the wire label for a kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindEditMismatch:
		return "edit_mismatch"
	case KindUpstream:
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error from a format string.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error with a message.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// EditMismatch builds a KindEditMismatch error.
func EditMismatch(format string, args ...interface{}) *Error {
	return New(KindEditMismatch, format, args...)
}

// Upstream wraps a model host failure.
func Upstream(cause error, format string, args ...interface{}) *Error {
	return Wrap(KindUpstream, cause, format, args...)
}

// KindOf extracts the kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error chain to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindEditMismatch:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to return to callers. Internal
// faults collapse to a generic string; everything else is already
// caller-addressable.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}
