package domain

import "time"

// OutcomeKind classifies the result of one upstream attempt.
type OutcomeKind string

const (
	// OutcomeSuccess is a well-formed response (or a fully relayed stream).
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeTransient is a timeout, connection failure, 5xx or upstream
	// rate limit. It triggers failover.
	OutcomeTransient OutcomeKind = "transient"

	// OutcomeFatal is a malformed request, upstream authentication failure
	// or unsupported parameter. It aborts the request.
	OutcomeFatal OutcomeKind = "fatal"

	// OutcomeCanceled is a caller-initiated cancellation. It never counts
	// against channel health.
	OutcomeCanceled OutcomeKind = "canceled"

	// OutcomeInterrupted is a failure after streamed output already reached
	// the caller.
	OutcomeInterrupted OutcomeKind = "interrupted"
)

// Outcome is the result of one upstream attempt.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// ChannelID is the channel the attempt went to. Empty when the request
	// never reached an upstream.
	ChannelID string `json:"channel_id,omitempty"`

	// Model is the client-facing model; MappedModel is what the upstream
	// was asked for.
	Model       string `json:"model"`
	MappedModel string `json:"mapped_model,omitempty"`

	// Attempt is the 1-based attempt number within the request.
	Attempt int `json:"attempt"`

	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Cost             float64       `json:"cost"`
	Streamed         bool          `json:"streamed"`

	// StatusCode is the upstream HTTP status when one was received.
	StatusCode int `json:"status_code,omitempty"`

	// Error is the failure message for unsuccessful attempts.
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Success reports whether the attempt succeeded.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeSuccess
}

// TotalTokens returns prompt plus completion tokens.
func (o Outcome) TotalTokens() int {
	return o.PromptTokens + o.CompletionTokens
}

// CountsAgainstHealth reports whether the outcome feeds the circuit
// breaker. Caller cancellations are excluded.
func (o Outcome) CountsAgainstHealth() bool {
	return o.Kind != OutcomeCanceled
}
