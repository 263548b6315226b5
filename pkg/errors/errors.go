// Package errors provides the structured error taxonomy shared by all
// connectors. Driver-native errors never cross the connector contract
// boundary; they are wrapped into an *Error tagged with the connector
// type and instance id so callers can classify failures without
// knowing which backend produced them.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConnection represents connectivity failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents credential or auth-mode failures
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeQuery represents query execution failures
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeSchema represents schema discovery failures
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeConfiguration represents invalid configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeTimeout represents deadline-exceeded failures
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit represents backend throttling
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeDataValidation represents malformed or rejected data
	ErrorTypeDataValidation ErrorType = "data_validation"
	// ErrorTypePermission represents authorization failures
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeNotFound represents missing resources (connector, table)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents uniqueness or registration conflicts
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeInternal represents framework-internal failures
	ErrorTypeInternal ErrorType = "internal"
)

// Error is the structured error carried across the connector boundary.
type Error struct {
	Type          ErrorType
	Message       string
	ConnectorType string
	ConnectorID   string
	Query         string
	RetryAfter    time.Duration
	Details       map[string]interface{}
	Cause         error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithConnector tags the error with the originating connector identity.
func (e *Error) WithConnector(connectorType, connectorID string) *Error {
	e.ConnectorType = connectorType
	e.ConnectorID = connectorID
	return e
}

// WithQuery attaches the offending query text to a query failure.
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithRetryAfter attaches a retry hint to a rate-limit failure.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context. Returns nil for
// a nil cause so call sites can wrap unconditionally.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// Preserve connector identity when re-wrapping one of our own.
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:          errType,
			Message:       message,
			ConnectorType: existing.ConnectorType,
			ConnectorID:   existing.ConnectorID,
			Query:         existing.Query,
			RetryAfter:    existing.RetryAfter,
			Cause:         err,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// TypeOf returns the taxonomy type of err, or ErrorTypeInternal when the
// error did not originate from this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// As is a convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
