package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError wraps a model backend failure with enough context to decide
// whether a retry is worthwhile.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d, model %s)", e.Provider, msg, e.StatusCode, e.Model)
	}
	return fmt.Sprintf("%s: %s (model %s)", e.Provider, msg, e.Model)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is transient. Rate limits, server
// errors, and network flakiness qualify; auth and validation failures do not.
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504, 529:
		return true
	case 400, 401, 403, 404, 413, 422:
		return false
	}

	msg := strings.ToLower(e.Error())
	for _, marker := range []string{
		"rate_limit", "too many requests", "overloaded",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
		"internal server error", "service unavailable", "bad gateway",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err should trigger another attempt.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
