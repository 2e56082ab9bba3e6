// Package apperr defines the error kinds shared by the session engine and its edges.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Nothing was applied.
	ErrValidation = errors.New("validation error")
	// ErrState marks an operation that is invalid for the current status.
	ErrState = errors.New("state error")
	// ErrNotFound marks an unknown session, team, activity or participant.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a caller without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks an operation that collides with a finished resource.
	ErrConflict = errors.New("conflict")
	// ErrTransient marks a channel or socket failure that may succeed on retry.
	ErrTransient = errors.New("transient network error")
)

func Validation(format string, args ...any) error { return wrap(ErrValidation, format, args...) }
func State(format string, args ...any) error      { return wrap(ErrState, format, args...) }
func NotFound(format string, args ...any) error   { return wrap(ErrNotFound, format, args...) }
func Forbidden(format string, args ...any) error  { return wrap(ErrForbidden, format, args...) }
func Conflict(format string, args ...any) error   { return wrap(ErrConflict, format, args...) }
func Transient(format string, args ...any) error  { return wrap(ErrTransient, format, args...) }

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind returns the sentinel err wraps, or nil for infrastructure errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrState, ErrNotFound, ErrForbidden, ErrConflict, ErrTransient} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
