package routing

import (
	"errors"
	"fmt"
	"strings"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoEligibleChannel is returned when no channel passes filtering for
	// a request. It is fatal for the request and never retried.
	ErrNoEligibleChannel = errors.New("no eligible channel")

	// ErrNilSnapshot is returned when Select is called without a snapshot.
	ErrNilSnapshot = errors.New("channel snapshot is nil")
)

// NoEligibleChannelError describes why filtering produced no candidate.
type NoEligibleChannelError struct {
	// TenantID is the tenant whose snapshot was filtered.
	TenantID string

	// Model is the requested model.
	Model string

	// Channels is the number of channels in the snapshot.
	Channels int

	// Inactive counts channels excluded by status or weight.
	Inactive int

	// Unsupported counts channels that do not serve the model.
	Unsupported int

	// Restricted is true when the tenant may not call the model at all.
	Restricted bool

	// Unhealthy lists channels excluded by the circuit breaker.
	Unhealthy []string

	// Preferred is set when the request was pinned to a channel that did
	// not pass filtering and fallback is disabled.
	Preferred string
}

// Error implements the error interface.
func (e *NoEligibleChannelError) Error() string {
	if e.Restricted {
		return fmt.Sprintf("no eligible channel for model %q: model not allowed for tenant %q", e.Model, e.TenantID)
	}
	if e.Channels == 0 {
		return fmt.Sprintf("no eligible channel for model %q: tenant %q has no channels", e.Model, e.TenantID)
	}
	if e.Preferred != "" {
		return fmt.Sprintf("no eligible channel for model %q: preferred channel %q is unavailable", e.Model, e.Preferred)
	}
	msg := fmt.Sprintf("no eligible channel for model %q (channels: %d, inactive: %d, unsupported: %d",
		e.Model, e.Channels, e.Inactive, e.Unsupported)
	if len(e.Unhealthy) > 0 {
		msg += ", circuit open: " + strings.Join(e.Unhealthy, ", ")
	}
	return msg + ")"
}

// Is implements error matching for errors.Is().
func (e *NoEligibleChannelError) Is(target error) bool {
	return target == ErrNoEligibleChannel
}
