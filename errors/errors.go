// Package errors provides error handling for Automn.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrRunnerUnavailable) {
//	    // map to a retryable status
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	GetAllDetails = crdb.GetAllDetails
	Join          = crdb.Join
)

// Common sentinel errors for use across Automn.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the request lacks proper authentication.
	// A wrong secret and an unknown host id both map here so callers
	// cannot probe which hosts exist.
	ErrUnauthorized = New("unauthorized")

	// ErrForbidden indicates the request is not allowed for this caller
	ErrForbidden = New("forbidden")

	// ErrRunnerUnavailable indicates no runner host can take the job right
	// now. The API boundary maps this to a retryable status.
	ErrRunnerUnavailable = New("runner unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrConflict indicates a resource conflict (e.g., duplicate name)
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsUnauthorizedError checks if an error is or wraps ErrUnauthorized.
func IsUnauthorizedError(err error) bool {
	return err != nil && Is(err, ErrUnauthorized)
}

// IsRunnerUnavailableError checks if an error is or wraps
// ErrRunnerUnavailable. Admission failures (no runner configured, unhealthy
// runner, unreachable runner) all satisfy this check.
func IsRunnerUnavailableError(err error) bool {
	return err != nil && Is(err, ErrRunnerUnavailable)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewRunnerUnavailableError creates a runner-unavailable error with a
// formatted message describing why no runner could take the job.
func NewRunnerUnavailableError(format string, args ...interface{}) error {
	return Wrap(ErrRunnerUnavailable, Newf(format, args...).Error())
}
