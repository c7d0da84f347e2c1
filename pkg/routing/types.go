package routing

import (
	"time"

	"weaver-hq/loom/pkg/routing/strategies"
)

// Default selector parameters.
const (
	DefaultAffinityTTL  = 5 * time.Minute
	DefaultAffinitySize = 10000
)

// Config configures a Selector.
type Config struct {
	// Strategy is the default strategy for tenants without an override.
	Strategy strategies.Kind

	// ErrorPenalty scales the error rate in the performance score.
	ErrorPenalty float64

	// Affinity configures the cache-affinity pre-filter.
	Affinity AffinityConfig

	// Manual configures requests pinned to a preferred channel.
	Manual strategies.Manual
}

// AffinityConfig configures cache affinity: requests carrying the same
// affinity key prefer the channel that last served them, which keeps
// upstream prompt caches warm.
type AffinityConfig struct {
	// Enabled turns the pre-filter on.
	Enabled bool

	// TTL is how long a remembered channel stays preferred.
	TTL time.Duration

	// Size bounds the number of remembered keys.
	Size int
}

// Decision describes how Select arrived at its candidate list.
type Decision struct {
	// Strategy is the strategy that ordered the tiers.
	Strategy strategies.Kind

	// Tiers is the number of non-empty priority tiers.
	Tiers int

	// AffinityHit is true when a remembered channel was moved to the head.
	AffinityHit bool

	// Pinned is true when the request's preferred channel was moved to the
	// head.
	Pinned bool

	// Filtered is the number of channels excluded by the circuit breaker.
	Filtered int
}

// RoutingStats contains statistics about routing decisions.
type RoutingStats struct {
	// TotalRequests is the total number of Select calls.
	TotalRequests int64 `json:"total_requests"`

	// FirstChoice counts how often each channel headed the candidate list.
	FirstChoice map[string]int64 `json:"first_choice"`

	// StrategyUseCount tracks how many times each strategy was used.
	StrategyUseCount map[string]int64 `json:"strategy_use_count"`

	// HealthFilteredCount is the number of selections where at least one
	// channel was excluded by its circuit breaker.
	HealthFilteredCount int64 `json:"health_filtered_count"`

	// AffinityHits is the number of selections led by a remembered channel.
	AffinityHits int64 `json:"affinity_hits"`

	// Pinned is the number of selections led by a preferred channel.
	Pinned int64 `json:"pinned"`

	// Errors is the number of selections that found no eligible channel.
	Errors int64 `json:"errors"`

	// LastResetTime is when statistics were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}
