package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"weaver-hq/loom/pkg/domain"
)

// ProviderError represents a general upstream error.
// It includes the channel, HTTP status code, and underlying error.
type ProviderError struct {
	// Channel is the ID of the channel that returned the error
	Channel string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("channel %q error (status %d): %s", e.Channel, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("channel %q error: %s", e.Channel, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// AuthError represents an authentication failure.
// This occurs when the upstream rejects the API key (HTTP 401 or 403).
type AuthError struct {
	// Channel is the ID of the channel that rejected authentication
	Channel string

	// StatusCode is 401 or 403
	StatusCode int

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("channel %q authentication failed: %s", e.Channel, e.Message)
}

// RateLimitError represents a rate limit exceeded error (HTTP 429).
// It includes the retry-after duration if provided by the upstream.
type RateLimitError struct {
	// Channel is the ID of the channel that rate limited the request
	Channel string

	// RetryAfter is the duration to wait before retrying (if provided)
	RetryAfter time.Duration

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("channel %q rate limit exceeded (retry after %s): %s",
			e.Channel, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("channel %q rate limit exceeded: %s", e.Channel, e.Message)
}

// TimeoutError represents an attempt that ran out of time before the
// upstream answered.
type TimeoutError struct {
	// Channel is the ID of the channel where the timeout occurred
	Channel string

	// Elapsed is how long the call ran before it was abandoned
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("channel %q request timeout after %s", e.Channel, e.Elapsed.Round(time.Millisecond))
}

// ParseError represents a response parsing failure.
// This occurs when the upstream returns a malformed response.
type ParseError struct {
	// Channel is the ID of the channel that returned the malformed response
	Channel string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("channel %q response parse error: %v", e.Channel, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ModelNotFoundError represents an unknown model error.
// This occurs when the upstream does not serve the mapped model.
type ModelNotFoundError struct {
	// Channel is the ID of the channel
	Channel string

	// Model is the provider-side model identifier
	Model string
}

// Error implements the error interface.
func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("channel %q does not support model %q", e.Channel, e.Model)
}

// ValidationError represents a request validation failure.
// This occurs when the request cannot be expressed for the upstream at all.
type ValidationError struct {
	// Field is the name of the invalid field
	Field string

	// Message describes what is invalid about the field
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// StreamError represents an error that occurred during streaming.
// This is sent through the stream channel to indicate an error.
type StreamError struct {
	// Channel is the ID of the channel where the error occurred
	Channel string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("channel %q stream error: %s: %v", e.Channel, e.Message, e.Cause)
	}
	return fmt.Sprintf("channel %q stream error: %s", e.Channel, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ConfigError represents a channel configuration error.
// This occurs when a channel lacks settings its adapter needs.
type ConfigError struct {
	// Channel is the ID of the channel with invalid configuration
	Channel string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("channel %q configuration error for field %q: %s",
		e.Channel, e.Field, e.Message)
}

// Classify maps an adapter error to the outcome kind the dispatcher acts
// on, together with the upstream HTTP status when one was received.
//
// Transient errors (timeouts, connection failures, 5xx, upstream rate
// limits, malformed responses) let the dispatcher fail over. Fatal errors
// (malformed requests, rejected credentials, unknown models, other 4xx)
// abort the request. context.Canceled is reported as a cancellation.
func Classify(err error) (domain.OutcomeKind, int) {
	if err == nil {
		return domain.OutcomeSuccess, http.StatusOK
	}

	var (
		authErr   *AuthError
		rateErr   *RateLimitError
		timeout   *TimeoutError
		notFound  *ModelNotFoundError
		invalid   *ValidationError
		configErr *ConfigError
		provErr   *ProviderError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return domain.OutcomeCanceled, 0
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeTransient, 0
	case errors.As(err, &authErr):
		return domain.OutcomeFatal, authErr.StatusCode
	case errors.As(err, &rateErr):
		return domain.OutcomeTransient, http.StatusTooManyRequests
	case errors.As(err, &notFound):
		return domain.OutcomeFatal, http.StatusNotFound
	case errors.As(err, &invalid):
		return domain.OutcomeFatal, http.StatusBadRequest
	case errors.As(err, &configErr):
		// A misconfigured channel cannot serve anyone; let the next
		// candidate try.
		return domain.OutcomeTransient, 0
	case errors.As(err, &provErr):
		return classifyStatus(provErr.StatusCode), provErr.StatusCode
	default:
		// Connection failures, stream and parse errors.
		return domain.OutcomeTransient, 0
	}
}

func classifyStatus(code int) domain.OutcomeKind {
	switch {
	case code == 0, code >= 500:
		return domain.OutcomeTransient
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return domain.OutcomeTransient
	case code >= 400:
		return domain.OutcomeFatal
	default:
		return domain.OutcomeTransient
	}
}

// IsTransient reports whether err should trigger failover.
func IsTransient(err error) bool {
	kind, _ := Classify(err)
	return kind == domain.OutcomeTransient
}
