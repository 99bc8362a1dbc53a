// Package errors provides error handling for shopper.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for user-facing configuration problems
//
// Usage:
//
//	if err := loadCatalog(path); err != nil {
//	    return errors.Wrapf(err, "failed to load catalog %s", path)
//	}
//
//	return errors.WithHint(err, "set SHOPPER_OPENROUTER_API_KEY or openrouter.api_key")
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
	Join         = crdb.Join
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors shared across packages.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates a remote service rejected our credentials
	ErrUnauthorized = New("unauthorized")

	// ErrServiceUnavailable indicates a required remote service is not available
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrMalformedResponse indicates a remote service answered with something we cannot parse
	ErrMalformedResponse = New("malformed response")

	// ErrCountMismatch indicates a remote batch call returned a different number of results than inputs
	ErrCountMismatch = New("result count mismatch")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}

// NewMalformedResponseError creates a malformed-response error with a formatted message
func NewMalformedResponseError(format string, args ...interface{}) error {
	return Wrapf(ErrMalformedResponse, format, args...)
}

// NewCountMismatchError reports that want results were expected but got arrived.
func NewCountMismatchError(want, got int) error {
	return Wrapf(ErrCountMismatch, "expected %d results, got %d", want, got)
}

// FromHTTPStatus maps a remote HTTP status code to the matching sentinel.
// Returns nil for 2xx codes.
func FromHTTPStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	case status == 408 || status == 504:
		return ErrTimeout
	case status == 429 || status >= 500:
		return ErrServiceUnavailable
	default:
		return ErrInvalidRequest
	}
}
