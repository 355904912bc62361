package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates a missing or malformed setting.
	ErrConfiguration = errors.New("configuration error")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedResponse indicates a provider response that could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrUnsupportedQuery indicates a query a provider cannot express.
	ErrUnsupportedQuery = errors.New("unsupported query")

	// ErrSourceFailed is matched by every SourceError.
	ErrSourceFailed = errors.New("source failed")

	// ErrCacheCorruption indicates an unreadable cache entry.
	ErrCacheCorruption = errors.New("cache entry corrupt")

	// ErrCacheMiss indicates the cache holds no fresh entry for a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrNoSources indicates a run with no usable sources.
	ErrNoSources = errors.New("no valid sources selected")
)

// FailureReason classifies why a source produced no records.
type FailureReason string

const (
	ReasonNetwork           FailureReason = "network"
	ReasonMalformedResponse FailureReason = "malformed_response"
	ReasonRateLimited       FailureReason = "rate_limited"
	ReasonTimeout           FailureReason = "timeout"
	ReasonUnsupportedQuery  FailureReason = "unsupported_query"
)

// SourceError reports a failed source. It is always recovered by the
// aggregator and recorded in the run's failure map.
type SourceError struct {
	Source SourceType
	Reason FailureReason
	Cause  error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Source.DisplayName(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source.DisplayName(), e.Reason, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Is matches ErrSourceFailed.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceFailed
}

// NewSourceError creates a new SourceError.
func NewSourceError(source SourceType, reason FailureReason, cause error) *SourceError {
	return &SourceError{
		Source: source,
		Reason: reason,
		Cause:  cause,
	}
}

// ClassifySourceError converts any error returned while querying a source
// into a SourceError. An existing SourceError is returned unchanged.
func ClassifySourceError(source SourceType, err error) *SourceError {
	if err == nil {
		return nil
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se
	}

	var rle *RateLimitError
	var apiErr *ExternalAPIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return NewSourceError(source, ReasonTimeout, err)
	case errors.As(err, &rle), errors.Is(err, ErrRateLimited):
		return NewSourceError(source, ReasonRateLimited, err)
	case errors.Is(err, ErrMalformedResponse):
		return NewSourceError(source, ReasonMalformedResponse, err)
	case errors.Is(err, ErrUnsupportedQuery):
		return NewSourceError(source, ReasonUnsupportedQuery, err)
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == 429:
			return NewSourceError(source, ReasonRateLimited, err)
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 422:
			return NewSourceError(source, ReasonUnsupportedQuery, err)
		}
		return NewSourceError(source, ReasonNetwork, err)
	default:
		return NewSourceError(source, ReasonNetwork, err)
	}
}

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

// ConfigurationError reports a setting that prevents startup.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// CacheCorruptionError reports a cache entry that could not be read back.
type CacheCorruptionError struct {
	Key   string
	Cause error
}

// Error implements the error interface.
func (e *CacheCorruptionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("cache entry %s is corrupt", e.Key)
	}
	return fmt.Sprintf("cache entry %s is corrupt: %v", e.Key, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *CacheCorruptionError) Unwrap() error {
	return ErrCacheCorruption
}

// RateLimitError provides details about a rate limit error.
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

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
	}
}

// NewCacheCorruptionError creates a new CacheCorruptionError.
func NewCacheCorruptionError(key string, cause error) *CacheCorruptionError {
	return &CacheCorruptionError{
		Key:   key,
		Cause: cause,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// MalformedResponse wraps a decode failure so it classifies as malformed_response.
func MalformedResponse(source string, err error) error {
	return fmt.Errorf("%s: %w: %v", source, ErrMalformedResponse, err)
}
