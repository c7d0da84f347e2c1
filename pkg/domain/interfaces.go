package domain

import (
	"context"
	"errors"
	"time"
)

// ErrTenantNotFound is returned by registries for unknown tenants.
var ErrTenantNotFound = errors.New("tenant not found")

// ChannelRegistry materializes a tenant's channels. Implementations may
// cache; the core never does.
type ChannelRegistry interface {
	// Snapshot returns a read-only copy of the tenant's channels.
	Snapshot(ctx context.Context, tenantID string) (*Snapshot, error)
}

// DenyReason explains a pre-flight denial.
type DenyReason string

const (
	DenyBudget    DenyReason = "budget_exceeded"
	DenyRateLimit DenyReason = "rate_limited"
)

// Decision is the result of a pre-flight budget check.
type Decision struct {
	Allowed    bool
	Reason     DenyReason
	Message    string
	RetryAfter time.Duration
}

// Allow is the zero-cost allow decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// BudgetGate enforces spend and rate limits around dispatch.
type BudgetGate interface {
	// Reserve is called once before selection.
	Reserve(ctx context.Context, req *RequestContext) (Decision, error)

	// Commit is called exactly once per request after dispatch terminates,
	// on success and on failure. Implementations must be idempotent on
	// requestID.
	Commit(ctx context.Context, requestID string, outcome Outcome) error
}

// AttemptLogger is a fire-and-forget sink for attempt outcomes.
type AttemptLogger interface {
	RecordAttempt(ctx context.Context, requestID, channelID string, outcome Outcome)
}

// NopAttemptLogger discards attempts.
type NopAttemptLogger struct{}

// RecordAttempt implements AttemptLogger.
func (NopAttemptLogger) RecordAttempt(context.Context, string, string, Outcome) {}
