// Package apierr gives the intake handlers and the reconciliation worker a
// small typed vocabulary of error kinds instead of ad hoc fmt.Errorf
// wrapping, so callers can branch on what happened (spec.md §7).
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the error classes spec.md §7 enumerates.
type Kind string

const (
	Validation      Kind = "validation"       // 400, never requeued
	Authorization   Kind = "authorization"    // 403, audited
	Precondition    Kind = "precondition"     // 409
	NotFound        Kind = "not_found"        // 404
	Transient       Kind = "transient"        // 500/503, retried where safe
	RemoteRejection Kind = "remote_rejection" // 400/409 with structured reason
	Poison          Kind = "poison"           // nacked without requeue
)

// Error wraps an underlying cause with a Kind and an optional structured
// reason, the shape §4.5/§4.6 call "a structured reason consumed by
// callers for rejection recording".
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to Transient for anything
// that wasn't produced through this package — the safe default, since an
// unclassified error should be retried rather than silently dropped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// HTTPStatus maps a Kind to the HTTP-analogue status spec.md §4.6 documents.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return 400
	case Authorization:
		return 403
	case Precondition:
		return 409
	case NotFound:
		return 404
	case RemoteRejection:
		return 400
	default:
		return 500
	}
}
