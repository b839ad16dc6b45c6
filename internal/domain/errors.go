package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a debate pipeline error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a caller contract violation,
	// detected before any dispatch happens.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeRoutingUnavailable indicates direct routing was requested
	// for a vendor with no usable credential.
	ErrorTypeRoutingUnavailable ErrorType = "routing_unavailable"

	// ErrorTypeTransport indicates a network-level failure reaching a
	// backend (connection refused, timeout, TLS).
	ErrorTypeTransport ErrorType = "transport_error"

	// ErrorTypeVendor indicates the backend answered with a non-success
	// response.
	ErrorTypeVendor ErrorType = "vendor_error"

	// ErrorTypeObserver indicates a round-completion hook failed. Always
	// logged, never propagated.
	ErrorTypeObserver ErrorType = "observer_error"

	// ErrorTypeNotFound indicates a transcript lookup matched nothing.
	ErrorTypeNotFound ErrorType = "not_found"
)

// DebateError is the canonical error carried across the pipeline. Errors
// local to one member's call are folded into that RoundResult; only
// precondition violations reach the caller as returned errors.
type DebateError struct {
	// Type is the category of error.
	Type ErrorType `json:"type"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Vendor is the backend the error relates to, when known.
	Vendor Vendor `json:"vendor,omitempty"`

	// StatusCode is the upstream HTTP status for vendor errors.
	StatusCode int `json:"status_code,omitempty"`

	err error
}

// Error implements the error interface.
func (e *DebateError) Error() string {
	if e.Vendor != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Vendor, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *DebateError) Unwrap() error { return e.err }

// WithCause attaches the underlying error.
func (e *DebateError) WithCause(err error) *DebateError {
	e.err = err
	return e
}

// WithVendor tags the error with the backend it relates to.
func (e *DebateError) WithVendor(v Vendor) *DebateError {
	e.Vendor = v
	return e
}

// WithStatusCode records the upstream HTTP status.
func (e *DebateError) WithStatusCode(code int) *DebateError {
	e.StatusCode = code
	return e
}

// HTTPStatusCode returns the HTTP status the API surface should answer
// with for this error.
func (e *DebateError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRoutingUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeVendor, ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewDebateError creates a new debate error.
func NewDebateError(errType ErrorType, message string) *DebateError {
	return &DebateError{
		Type:    errType,
		Message: message,
	}
}

// Convenience constructors for the taxonomy

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *DebateError {
	return NewDebateError(ErrorTypeInvalidRequest, message)
}

// ErrInvalidRequestf creates an invalid request error with formatting.
func ErrInvalidRequestf(format string, args ...any) *DebateError {
	return NewDebateError(ErrorTypeInvalidRequest, fmt.Sprintf(format, args...))
}

// ErrRoutingUnavailable creates a routing unavailable error for a vendor.
func ErrRoutingUnavailable(vendor Vendor, message string) *DebateError {
	return NewDebateError(ErrorTypeRoutingUnavailable, message).WithVendor(vendor)
}

// ErrTransport creates a transport error for a vendor.
func ErrTransport(vendor Vendor, message string) *DebateError {
	return NewDebateError(ErrorTypeTransport, message).WithVendor(vendor)
}

// ErrVendor creates a vendor error carrying the upstream status.
func ErrVendor(vendor Vendor, statusCode int, message string) *DebateError {
	return NewDebateError(ErrorTypeVendor, message).
		WithVendor(vendor).
		WithStatusCode(statusCode)
}

// ErrObserver creates an observer error.
func ErrObserver(message string) *DebateError {
	return NewDebateError(ErrorTypeObserver, message)
}

// ErrNotFoundf creates a not found error with formatting.
func ErrNotFoundf(format string, args ...any) *DebateError {
	return NewDebateError(ErrorTypeNotFound, fmt.Sprintf(format, args...))
}

// IsErrorType reports whether err is (or wraps) a DebateError of the
// given type.
func IsErrorType(err error, t ErrorType) bool {
	var de *DebateError
	return errors.As(err, &de) && de.Type == t
}
