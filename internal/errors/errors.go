// Package errors defines the typed error taxonomy for upstream API and user
// directory failures. Scheduler outcome classification branches on Kind, so
// every error crossing the request boundary is one of these.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates upstream failure classes.
type Kind int

const (
	KindGeneric Kind = iota
	KindRateLimit
	KindUnauthorized
	KindForbidden
	KindClientError
	KindValidation
	KindNotFound
	KindDirectoryUnavailable
	KindConverter
)

// String returns the stable code for a kind.
func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "RATE_LIMIT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindClientError:
		return "CLIENT_ERROR"
	case KindValidation:
		return "VALIDATION_FAILED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindDirectoryUnavailable:
		return "DIRECTORY_UNAVAILABLE"
	case KindConverter:
		return "CONVERTER_FAILURE"
	default:
		return "GENERIC_UPSTREAM_ERROR"
	}
}

// Error is an upstream failure with its class, the HTTP status that produced
// it (0 when not HTTP-derived), and the underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so callers can compare against sentinel values.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New creates a typed error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// FromStatus classifies an upstream HTTP status code into the taxonomy.
func FromStatus(status int, message string) *Error {
	err := &Error{Message: message, StatusCode: status}
	switch status {
	case http.StatusTooManyRequests:
		err.Kind = KindRateLimit
	case http.StatusUnauthorized:
		err.Kind = KindUnauthorized
	case http.StatusForbidden:
		err.Kind = KindForbidden
	case http.StatusNotFound:
		err.Kind = KindNotFound
	case http.StatusUnprocessableEntity:
		err.Kind = KindValidation
	case http.StatusBadRequest:
		err.Kind = KindClientError
	default:
		if status >= 400 && status < 500 {
			err.Kind = KindClientError
		} else {
			err.Kind = KindGeneric
		}
	}
	return err
}

// KindOf returns the kind of err, or KindGeneric for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindGeneric
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var typed *Error
	return errors.As(err, &typed) && typed.Kind == kind
}
