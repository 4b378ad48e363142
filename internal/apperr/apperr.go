package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers. Keep values stable; the HTTP layer maps them
// to status codes and they appear in error envelopes.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindValidationConflict  Kind = "validation_conflict"
	KindPermissionDenied    Kind = "permission_denied"
	KindTransientConflict   Kind = "transient_conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
)

// Error carries a kind and a reason precise enough to log and assert on.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind, so errors.Is(err, ErrNotFound) holds for every
// not-found error regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrValidationConflict  = &Error{Kind: KindValidationConflict}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrTransientConflict   = &Error{Kind: KindTransientConflict}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
)

func New(kind Kind, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindValidationConflict, Reason: fmt.Sprintf(format, args...)}
}

func Denied(format string, args ...any) error {
	return &Error{Kind: KindPermissionDenied, Reason: fmt.Sprintf(format, args...)}
}

func Transient(reason string, err error) error {
	return &Error{Kind: KindTransientConflict, Reason: reason, Err: err}
}

func Unavailable(reason string, err error) error {
	return &Error{Kind: KindUpstreamUnavailable, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in the chain, falling back to err.Error().
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
