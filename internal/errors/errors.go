package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUpstream represents a non-200 answer from an external source
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryTransport represents network failures talking to an external source
	CategoryTransport ErrorCategory = "transport"
	// CategoryDecode represents external payloads that do not match the record schema
	CategoryDecode ErrorCategory = "decode"
	// CategoryNotFound represents store lookup misses
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rejected admissions
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryPersistence represents background write failures
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryValidation represents invalid request parameters
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents internal failures (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code.
// Message is the client-facing detail text.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// External source errors

// NewUpstreamError creates an error for a non-200 answer from an external
// source. The upstream status code is propagated unchanged.
func NewUpstreamError(source string, statusCode int, body string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: statusCode,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("Error: %s", body),
		Details: map[string]interface{}{
			"source":     source,
			"statusCode": statusCode,
			"body":       body,
		},
	}
}

// NewTransportError creates an error for a failed round trip to an external source
func NewTransportError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusInternalServerError,
		Code:       "TRANSPORT_ERROR",
		Message:    fmt.Sprintf("An error occurred: %v", cause),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// NewDecodeError creates an error for an external payload that cannot be decoded
func NewDecodeError(source string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDecode,
		StatusCode: http.StatusInternalServerError,
		Code:       "DECODE_ERROR",
		Message:    fmt.Sprintf("An error occurred: %v", cause),
		Cause:      cause,
		Details: map[string]interface{}{
			"source": source,
		},
	}
}

// Request errors (4xx)

// NewNotFoundError creates a not found error with a fixed client message
func NewNotFoundError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    message,
	}
}

// NewRateLimitedError creates a rate limit rejection
func NewRateLimitedError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too Many Requests. Retry after %d seconds.", retryAfter),
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// System errors (5xx)

// NewPersistenceError creates an error for a record that could not be written
func NewPersistenceError(recordType string, recordID interface{}, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPersistence,
		StatusCode: http.StatusInternalServerError,
		Code:       "PERSISTENCE_ERROR",
		Message:    fmt.Sprintf("failed to persist %s record", recordType),
		Cause:      cause,
		Details: map[string]interface{}{
			"recordType": recordType,
			"recordId":   recordID,
		},
	}
}

// NewLimiterUnavailableError creates an error for an unreachable limiter store
func NewLimiterUnavailableError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "LIMITER_UNAVAILABLE",
		Message:    "Rate limiter unavailable",
		Cause:      cause,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized (possibly wrapped), return as-is
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	// Default to internal error
	return NewInternalError("Internal server error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// RetryAfter returns the retry delay carried by a rate limit rejection
func RetryAfter(err error) (int, bool) {
	catErr := Categorize(err)
	if catErr == nil || catErr.Category != CategoryRateLimit {
		return 0, false
	}
	seconds, ok := catErr.Details["retryAfter"].(int)
	return seconds, ok
}

// IsCategory reports whether err is a categorized error of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) {
		return false
	}
	return catErr.Category == category
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
