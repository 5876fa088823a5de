// Package retry provides error classification for provider dispatch
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCategory classifies a dispatch failure
type ErrorCategory string

const (
	CategoryAuth      ErrorCategory = "auth"       // 401/403, never retried
	CategoryRateLimit ErrorCategory = "rate_limit" // 429, never retried by the dispatcher
	CategoryServer    ErrorCategory = "server"     // >=500, retried
	CategoryTimeout   ErrorCategory = "timeout"    // per-attempt timeout, retried
	CategoryNetwork   ErrorCategory = "network"    // transport failure, retried
	CategoryEnvelope  ErrorCategory = "envelope"   // malformed success body, never retried
	CategoryClient    ErrorCategory = "client"     // other 4xx, never retried
)

// ProviderError represents a classified failure from a provider call
type ProviderError struct {
	Provider   string        `json:"provider"`
	Category   ErrorCategory `json:"category"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"retryable"`
	Err        error         `json:"-"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %s (retryable: %v)", e.Provider, e.Message, e.Retryable)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a classified provider error
func NewProviderError(provider string, category ErrorCategory, message string, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Category:  category,
		Message:   message,
		Retryable: retryable,
	}
}

// ClassifyStatus classifies an unexpected HTTP status from a provider.
// 429 fails fast so the coordinator can move to another provider; 401/403
// cannot be fixed by retrying; >=500 is worth another attempt.
func ClassifyStatus(provider string, statusCode int, body string) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("unexpected status %d: %s", statusCode, body),
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		pe.Category = CategoryRateLimit
		pe.Retryable = false
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		pe.Category = CategoryAuth
		pe.Retryable = false
	case statusCode >= 500:
		pe.Category = CategoryServer
		pe.Retryable = true
	default:
		pe.Category = CategoryClient
		pe.Retryable = false
	}

	return pe
}

// ClassifyTransport classifies a low-level transport error
func ClassifyTransport(provider string, err error) *ProviderError {
	pe := &ProviderError{
		Provider:  provider,
		Message:   err.Error(),
		Retryable: true,
		Err:       err,
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Category = CategoryTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		pe.Category = CategoryTimeout
	default:
		pe.Category = CategoryNetwork
	}

	return pe
}

// IsRetryable reports whether err should be retried within one dispatch
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CategoryOf returns the category of a classified error, or "" for other errors
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}
