package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrRejected indicates the remote store rejected the request (4xx or
	// malformed payload). Rejections are never retried.
	ErrRejected = errors.New("rejected by remote store")

	// ErrUnavailable indicates a transient network or server failure.
	// Unavailable errors are retried with backoff at the call boundary.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates that an external API rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidInput indicates that input data failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RateLimitError provides details about an upstream rate limit response.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap classifies the error by status code so callers can use errors.Is to
// decide retryability: 429 and 5xx unwrap to transient sentinels, everything
// else in the 4xx range unwraps to ErrRejected.
func (e *ExternalAPIError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	switch {
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrUnavailable
	case e.StatusCode >= 400:
		return ErrRejected
	}
	return nil
}

// EnrichmentError marks a record whose remote item was created but whose
// post-create step (attachment, collection membership) failed. The created
// item is deliberately left in place; deleting it on a network blip risks
// re-creating true duplicates on retry.
type EnrichmentError struct {
	ItemKey string
	Step    string
	Cause   error
}

// Error implements the error interface.
func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("item %s created but %s failed: %v", e.ItemKey, e.Step, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EnrichmentError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}
