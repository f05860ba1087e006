package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow rejection.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindInvalidState    Kind = "invalid_state_transition"
	KindValidation      Kind = "validation_error"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInternal        = &Error{Kind: KindInternal}
)

// Error is the typed outcome returned for every rejected operation.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any other *Error of the same kind, so callers can use the Err* sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// Code is the stable machine-readable code exposed to API clients.
// A lost race is reported exactly like a failed status precondition.
func (e *Error) Code() string {
	if e.Kind == KindConflict {
		return string(KindInvalidState)
	}
	return string(e.Kind)
}

// Unauthenticated reports a call without a resolved identity.
func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "authentication required"}
}

// Forbidden reports a role or ownership rejection.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown request identifier.
func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("request %s not found", id)}
}

// InvalidTransition reports an action that is not permitted from the current status.
func InvalidTransition(action Action, current Status) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("invalid state transition: cannot %s a request in status %s", action, current),
	}
}

// Validation reports payload problems keyed by field name.
func Validation(message string, fields map[string]string) *Error {
	if message == "" {
		message = "validation failed"
	}
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Conflict reports a transition that lost a concurrent race at the store.
func Conflict(action Action, id string, err error) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("invalid state transition: request %s changed while attempting %s", id, action),
		Err:     err,
	}
}

// Internal wraps an unexpected failure. The message never carries the cause.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the kind of a workflow error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return KindInternal
}
