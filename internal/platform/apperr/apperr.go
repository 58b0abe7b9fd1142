// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package apperr defines the centralized error handling framework for Tessera.

It provides a rich error type that bridges the gap between low-level driver
errors and the stable error surface the query layer promises its callers.

Architecture:

  - AppError: A struct containing a machine-readable Code and a client-safe message.
  - Opacity: Driver-level SQL errors are wrapped as BAD_QUERY and never leak raw.
  - Mapping: Explicit mapping from AppError to standard HTTP status codes.

Every error that leaves the search or metadata layer should be wrapped as an
[AppError] so callers can dispatch on the Code without parsing messages.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the canonical error type for the Tessera query layer.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to
// clients, so raw SQL and driver details stay inside the process.
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "BAD_QUERY").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Client Errors (4xx)

// MalformedCondition creates a 400 [AppError] for a search condition rejected
// at construction or compile time. The offending operator, type, or property
// belongs in the message so the caller can act on it.
func MalformedCondition(format string, args ...any) *AppError {
	return &AppError{
		Code:       "MALFORMED_CONDITION",
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// BadQuery creates the opaque 400 [AppError] replacing any driver-level SQL
// failure. The raw error is preserved as the cause for logging.
func BadQuery(cause error) *AppError {
	return &AppError{
		Code:       "BAD_QUERY",
		Message:    "Bad query",
		HTTPStatus: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NotFound creates a 404 [AppError] for a named resource or identifier.
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Ambiguous creates a 409 [AppError] for an identifier resolving to more than
// one resource. Distinct from NotFound so callers can tell the two apart.
func Ambiguous(identifier string, count int) *AppError {
	return &AppError{
		Code:       "AMBIGUOUS_MATCH",
		Message:    fmt.Sprintf("%s matches %d resources", identifier, count),
		HTTPStatus: http.StatusConflict,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// FacetConfig creates a 422 [AppError] for an invalid facet descriptor,
// rejected eagerly at registration time rather than at query time.
func FacetConfig(format string, args ...any) *AppError {
	return &AppError{
		Code:       "FACET_CONFIG",
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
