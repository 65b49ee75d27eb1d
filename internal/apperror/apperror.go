// Package apperror defines the domain error taxonomy surfaced by the
// service layer. Each error carries the HTTP status handlers should use.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindInsufficientCapacity Kind = "insufficient_capacity"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindInternal             Kind = "internal"
)

// Error is a domain error with a stable status and a caller-safe message.
// Err holds the underlying cause and is never shown to clients.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, apperror.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// WithStatus returns a copy of e answering with a different HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.Status = status
	return &c
}

// New builds an error of an explicit kind and status.
func New(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Message: msg}
}

// Kind markers for errors.Is.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrInsufficientCapacity = &Error{Kind: KindInsufficientCapacity}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrInternal             = &Error{Kind: KindInternal}
)

// Validation reports malformed input and lists every offending field.
func Validation(msg string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg, Fields: fields}
}

// MissingFields is the validation error for absent required fields.
func MissingFields(fields ...string) *Error {
	return Validation("missing required fields", fields...)
}

// NotFound reports that what (customer, listing, booking...) does not exist.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: what + " not found"}
}

// Conflict reports a state clash such as a duplicate pending reschedule.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

// InsufficientCapacity reports a failed capacity check.
func InsufficientCapacity(msg string) *Error {
	return &Error{Kind: KindInsufficientCapacity, Status: http.StatusConflict, Message: msg}
}

// Unauthorized reports a missing or unusable identity.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: msg}
}

// Forbidden reports a role or ownership mismatch.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

// Internal wraps an unexpected failure. The message shown to clients is
// always generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal server error", Err: err}
}

// From converts any error into an *Error, treating unknown errors as
// internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
