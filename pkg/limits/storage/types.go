package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidEntry is returned for entries without a request ID.
var ErrInvalidEntry = errors.New("ledger entry requires a request id")

// Entry is the settled spend of one request.
type Entry struct {
	RequestID        string    `json:"request_id"`
	TenantID         string    `json:"tenant_id"`
	APIKeyID         string    `json:"api_key_id,omitempty"`
	ChannelID        string    `json:"channel_id,omitempty"`
	Model            string    `json:"model,omitempty"`
	Outcome          string    `json:"outcome"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	CommittedAt      time.Time `json:"committed_at"`
}

// Ledger is an append-only, request-keyed spend log.
type Ledger interface {
	// Append stores e unless its request ID is already present. It reports
	// whether the entry was inserted.
	Append(ctx context.Context, e Entry) (bool, error)

	// Get returns the entry for a request ID, or nil.
	Get(ctx context.Context, requestID string) (*Entry, error)

	// Since returns entries committed at or after since, oldest first.
	Since(ctx context.Context, since time.Time) ([]Entry, error)

	// Cleanup deletes entries committed before olderThan and returns how
	// many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

func validate(e Entry) error {
	if e.RequestID == "" {
		return ErrInvalidEntry
	}
	return nil
}
