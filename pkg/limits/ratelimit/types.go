package ratelimit

import "time"

// Config holds one tenant's rate limits. Zero disables a dimension.
type Config struct {
	// RequestsPerMinute is the sustained request rate.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute,omitempty"`

	// Burst is how many requests may arrive at once. Defaults to
	// RequestsPerMinute/10, at least 1.
	Burst int `yaml:"burst" json:"burst,omitempty"`

	// TokensPerMinute caps prompt plus completion tokens over a rolling
	// minute.
	TokensPerMinute int `yaml:"tokens_per_minute" json:"tokens_per_minute,omitempty"`

	// MaxConcurrent caps in-flight requests.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent,omitempty"`
}

// Enabled reports whether any dimension is limited.
func (c Config) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.TokensPerMinute > 0 || c.MaxConcurrent > 0
}

// Dimension names the limit that denied a request.
type Dimension string

const (
	DimensionRequests   Dimension = "requests"
	DimensionTokens     Dimension = "tokens"
	DimensionConcurrent Dimension = "concurrent"
)

// CheckResult is the result of Limiter.Check.
type CheckResult struct {
	Allowed bool

	// Dimension and Reason describe a denial.
	Dimension Dimension
	Reason    string

	// Limit and Remaining refer to the denying dimension, or to requests
	// per minute when allowed.
	Limit     int64
	Remaining int64

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration

	// holdsSlot is set when a concurrency slot was taken.
	holdsSlot bool
}

// HoldsSlot reports whether the result owns a concurrency slot that must
// be returned with Limiter.Release.
func (r CheckResult) HoldsSlot() bool {
	return r.holdsSlot
}
