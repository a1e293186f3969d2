package translate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a translation failure.
type ErrorType string

const (
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeOutput   ErrorType = "output"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured translator error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured translator error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	var result *Error
	switch {
	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		result = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		result = NewError(ErrorTypeModel, "model not found", false, err)
	case statusCode == 404:
		result = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		result = NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		result = NewError(ErrorTypeEndpoint, "request timeout", true, err)
	case statusCode == 429 || strings.Contains(lower, "rate limit") || strings.Contains(lower, "overloaded"):
		result = NewError(ErrorTypeUnknown, "rate limited", true, err)
	case statusCode >= 500:
		result = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		result = NewError(ErrorTypeUnknown, "translation error", false, err)
	}
	result.StatusCode = statusCode
	result.Provider = provider
	return result
}

// IsRetryable returns true if the error is a retryable translator error.
func IsRetryable(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Retryable
	}
	return false
}
