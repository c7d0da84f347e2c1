package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing"
)

// Common dispatch errors that can be checked with errors.Is().
var (
	// ErrUpstreamTransient matches a transient upstream failure.
	ErrUpstreamTransient = errors.New("upstream transient failure")

	// ErrUpstreamFatal matches a fatal upstream failure. The request is
	// not retried on another channel.
	ErrUpstreamFatal = errors.New("upstream fatal failure")

	// ErrAllAttemptsFailed is returned when every attempt failed
	// transiently.
	ErrAllAttemptsFailed = errors.New("all attempts failed")

	// ErrStreamInterrupted ends a stream that failed after output reached
	// the caller.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrDeadlineExceeded is returned when the request deadline expired
	// before an attempt succeeded.
	ErrDeadlineExceeded = errors.New("request deadline exceeded")
)

// AttemptSummary describes one failed attempt.
type AttemptSummary struct {
	ChannelID  string             `json:"channel_id"`
	Model      string             `json:"model"`
	Attempt    int                `json:"attempt"`
	Kind       domain.OutcomeKind `json:"kind"`
	StatusCode int                `json:"status_code,omitempty"`
	Latency    time.Duration      `json:"latency"`
	Error      string             `json:"error"`
}

func summarize(o domain.Outcome) AttemptSummary {
	return AttemptSummary{
		ChannelID:  o.ChannelID,
		Model:      o.MappedModel,
		Attempt:    o.Attempt,
		Kind:       o.Kind,
		StatusCode: o.StatusCode,
		Latency:    o.Latency,
		Error:      o.Error,
	}
}

func (s AttemptSummary) String() string {
	if s.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", s.ChannelID, s.StatusCode, s.Error)
	}
	return fmt.Sprintf("%s: %s", s.ChannelID, s.Error)
}

// UpstreamError is a classified failure of one attempt.
type UpstreamError struct {
	ChannelID  string
	Model      string
	Attempt    int
	Kind       domain.OutcomeKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("channel %q attempt %d %s: %v", e.ChannelID, e.Attempt, e.Kind, e.Err)
}

// Is matches ErrUpstreamFatal or ErrUpstreamTransient according to Kind.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamFatal:
		return e.Kind == domain.OutcomeFatal
	case ErrUpstreamTransient:
		return e.Kind == domain.OutcomeTransient
	}
	return false
}

// Unwrap returns the adapter error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AllAttemptsFailedError aggregates the failures of a request whose every
// attempt failed transiently.
type AllAttemptsFailedError struct {
	// Attempts lists the failed attempts in order.
	Attempts []AttemptSummary

	// Skipped lists candidates passed over because their half-open trial
	// was already taken or their breaker re-opened.
	Skipped []string

	last error
}

// Error implements the error interface.
func (e *AllAttemptsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("all attempts failed: no candidate could be acquired (skipped: %s)", strings.Join(e.Skipped, ", "))
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return fmt.Sprintf("all %d attempts failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Is matches ErrAllAttemptsFailed. When no attempt could be made at all
// it also matches routing.ErrNoEligibleChannel.
func (e *AllAttemptsFailedError) Is(target error) bool {
	if target == ErrAllAttemptsFailed {
		return true
	}
	return target == routing.ErrNoEligibleChannel && len(e.Attempts) == 0
}

// Unwrap returns the last attempt's error.
func (e *AllAttemptsFailedError) Unwrap() error {
	return e.last
}

// DeadlineExceededError is returned when the request deadline expired
// before an attempt succeeded.
type DeadlineExceededError struct {
	Attempts []AttemptSummary
}

// Error implements the error interface.
func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("request deadline exceeded after %d attempt(s)", len(e.Attempts))
}

// Is matches ErrDeadlineExceeded and context.DeadlineExceeded.
func (e *DeadlineExceededError) Is(target error) bool {
	return target == ErrDeadlineExceeded || target == context.DeadlineExceeded
}

// StreamInterruptedError is delivered as the Err of the final chunk when a
// stream fails after its first chunk was relayed.
type StreamInterruptedError struct {
	ChannelID string

	// Tokens is the number of completion tokens relayed before the failure.
	Tokens int

	Err error
}

// Error implements the error interface.
func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream from channel %q interrupted after %d tokens: %v", e.ChannelID, e.Tokens, e.Err)
}

// Is matches ErrStreamInterrupted.
func (e *StreamInterruptedError) Is(target error) bool {
	return target == ErrStreamInterrupted
}

// Unwrap returns the underlying failure.
func (e *StreamInterruptedError) Unwrap() error {
	return e.Err
}
