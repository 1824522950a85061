// Package fault defines the error taxonomy of the bridge: which failures a
// client can fix, which are retried, and which abort the current request.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError covers user-fixable input problems (missing identifier,
// no usable content). Maps to 422.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError covers a missing or mismatched API key. Maps to 401.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// StorageError is fatal for the current request (500). Committed records
// are never affected.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// TransientUpstreamError marks a downstream failure worth retrying:
// connection failures and 5xx-class responses.
type TransientUpstreamError struct {
	Status int
	Err    error
}

func (e *TransientUpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient upstream error: %v", e.Err)
	}
	return fmt.Sprintf("transient upstream error: status %d", e.Status)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// TerminalUpstreamError marks a downstream rejection that retrying cannot
// fix (4xx-class). Surfaced immediately.
type TerminalUpstreamError struct {
	Status int
	Body   string
}

func (e *TerminalUpstreamError) Error() string {
	return fmt.Sprintf("terminal upstream error: status %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err should be retried per the forwarder's
// retry policy.
func IsTransient(err error) bool {
	var te *TransientUpstreamError
	return errors.As(err, &te)
}

// IsValidation reports whether err is user-fixable input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err came from the canonical store.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
