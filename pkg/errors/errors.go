// Package errors defines custom error types for the question bank service
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents different types of errors
type ErrorCode string

const (
	// Request validation errors
	ErrValidation       ErrorCode = "VALIDATION_FAILED"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrNotFound         ErrorCode = "NOT_FOUND"

	// Provider errors
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"

	// Internal errors
	ErrDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// ServiceError represents a service-level error with a stable code
type ServiceError struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	Details        string    `json:"details,omitempty"`
	HTTPStatusCode int       `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a new service error
func New(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:           code,
		Message:        message,
		HTTPStatusCode: getHTTPStatusCode(code),
	}
}

// NewWithDetails creates a new service error with details
func NewWithDetails(code ErrorCode, message, details string) *ServiceError {
	return &ServiceError{
		Code:           code,
		Message:        message,
		Details:        details,
		HTTPStatusCode: getHTTPStatusCode(code),
	}
}

// NewValidation creates a validation error
func NewValidation(message string) *ServiceError {
	return New(ErrValidation, message)
}

// NewNotFound creates a not-found error
func NewNotFound(message string) *ServiceError {
	return New(ErrNotFound, message)
}

// NewDatabase wraps a storage failure
func NewDatabase(message string, err error) *ServiceError {
	se := New(ErrDatabaseError, message)
	if err != nil {
		se.Details = err.Error()
	}
	return se
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrValidation) || hasCode(err, ErrMissingParameter)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound)
}

func hasCode(err error, code ErrorCode) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// getHTTPStatusCode maps error codes to HTTP status codes
func getHTTPStatusCode(code ErrorCode) int {
	switch code {
	case ErrValidation, ErrMissingParameter:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case ErrProviderTimeout:
		return http.StatusGatewayTimeout
	case ErrProviderError, ErrDatabaseError, ErrInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the HTTP status for err, defaulting to 500
func HTTPStatus(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.HTTPStatusCode
	}
	return http.StatusInternalServerError
}
