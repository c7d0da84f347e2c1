package limits

import (
	"errors"
	"fmt"
	"time"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/limits/budget"
)

var (
	// ErrRateLimited is returned when a tenant exceeds a rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBudgetExceeded is returned when a tenant's spend meets a budget.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrAlreadyReserved is returned when Reserve is called twice for the
	// same request ID without a Commit in between.
	ErrAlreadyReserved = errors.New("request already reserved")
)

// LimitError is a denial returned to the caller. It matches
// ErrRateLimited or ErrBudgetExceeded with errors.Is.
type LimitError struct {
	TenantID   string
	Reason     domain.DenyReason
	Message    string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tenant %s: %s", e.TenantID, e.Reason)
	}
	return fmt.Sprintf("tenant %s: %s", e.TenantID, e.Message)
}

// Is matches the sentinel for the denial reason.
func (e *LimitError) Is(target error) bool {
	switch e.Reason {
	case domain.DenyBudget:
		return target == ErrBudgetExceeded
	case domain.DenyRateLimit:
		return target == ErrRateLimited
	}
	return false
}

// DenialError converts a denied decision into a LimitError. It returns nil
// for allowed decisions.
func DenialError(tenantID string, d domain.Decision) error {
	if d.Allowed {
		return nil
	}
	return &LimitError{TenantID: tenantID, Reason: d.Reason, Message: d.Message, RetryAfter: d.RetryAfter}
}

// TenantStatus is a point-in-time view of one tenant's limits.
type TenantStatus struct {
	TenantID string          `json:"tenant_id"`
	Budgets  []budget.Status `json:"budgets,omitempty"`
	InFlight int64           `json:"in_flight"`

	// Pending is the number of reserved but uncommitted requests.
	Pending int `json:"pending"`
}
