package attemptlog

import (
	"context"
	"time"

	"weaver-hq/loom/pkg/domain"
)

// Record is one upstream attempt.
type Record struct {
	// ID is a UUID assigned by the recorder.
	ID        string `json:"id"`
	RequestID string `json:"request_id"`

	ChannelID   string `json:"channel_id"`
	Model       string `json:"model"`
	MappedModel string `json:"mapped_model,omitempty"`

	// Attempt is the 1-based attempt number within the request.
	Attempt int `json:"attempt"`

	Outcome    domain.OutcomeKind `json:"outcome"`
	StatusCode int                `json:"status_code,omitempty"`
	Error      string             `json:"error,omitempty"`

	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Cost             float64       `json:"cost"`
	Streamed         bool          `json:"streamed"`

	// Timestamp is when the attempt finished; RecordedAt is when it was
	// handed to the recorder.
	Timestamp  time.Time `json:"timestamp"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FromOutcome builds a record from a dispatcher outcome. ID and RecordedAt
// are left for the recorder to fill.
func FromOutcome(requestID, channelID string, o domain.Outcome) *Record {
	if channelID == "" {
		channelID = o.ChannelID
	}
	return &Record{
		RequestID:        requestID,
		ChannelID:        channelID,
		Model:            o.Model,
		MappedModel:      o.MappedModel,
		Attempt:          o.Attempt,
		Outcome:          o.Kind,
		StatusCode:       o.StatusCode,
		Error:            o.Error,
		Latency:          o.Latency,
		PromptTokens:     o.PromptTokens,
		CompletionTokens: o.CompletionTokens,
		Cost:             o.Cost,
		Streamed:         o.Streamed,
		Timestamp:        o.Timestamp,
	}
}

// Sort orders for Query.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// DefaultQueryLimit applies when Query.Limit is zero.
const DefaultQueryLimit = 100

// Query filters records. Zero fields match everything.
type Query struct {
	RequestID string             `json:"request_id,omitempty"`
	ChannelID string             `json:"channel_id,omitempty"`
	Model     string             `json:"model,omitempty"`
	Outcome   domain.OutcomeKind `json:"outcome,omitempty"`

	// Since and Until bound Timestamp, both inclusive.
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	// Limit caps the result. Count and Delete ignore Limit and Offset.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Order sorts by timestamp; desc (newest first) by default.
	Order string `json:"order,omitempty"`
}

// Store persists attempt records. Implementations are safe for concurrent
// use.
type Store interface {
	Store(ctx context.Context, rec *Record) error
	Query(ctx context.Context, q *Query) ([]*Record, error)
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes the records matching q and returns how many went.
	Delete(ctx context.Context, q *Query) (int64, error)

	Close() error
}
