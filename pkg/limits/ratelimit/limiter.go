package ratelimit

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Limiter combines the request, token and concurrency limits of one
// tenant. It is safe for concurrent use.
type Limiter struct {
	config     Config
	requests   *rate.Limiter
	tokens     *SlidingWindow
	concurrent *ConcurrentLimiter
}

// NewLimiter creates a limiter; dimensions left at zero are unlimited.
func NewLimiter(config Config) *Limiter {
	l := &Limiter{config: config}

	if config.RequestsPerMinute > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = max(1, config.RequestsPerMinute/10)
		}
		l.config.Burst = burst
		l.requests = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60), burst)
	}
	if config.TokensPerMinute > 0 {
		l.tokens = NewSlidingWindow(time.Minute, time.Second)
	}
	if config.MaxConcurrent > 0 {
		l.concurrent = NewConcurrentLimiter(config.MaxConcurrent)
	}
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// Check admits one request estimated at estimatedTokens. On success it has
// consumed one request token and, when concurrency is limited, holds a
// slot that the caller returns with Release. A denial leaves no trace.
func (l *Limiter) Check(now time.Time, estimatedTokens int) CheckResult {
	if l.tokens != nil {
		used := l.tokens.SumAt(now)
		limit := int64(l.config.TokensPerMinute)
		if used >= limit || (used > 0 && used+int64(estimatedTokens) > limit) {
			return CheckResult{
				Dimension:  DimensionTokens,
				Reason:     fmt.Sprintf("token rate limit of %d per minute exceeded", limit),
				Limit:      limit,
				Remaining:  max(0, limit-used),
				RetryAfter: l.tokens.ResetAt(now).Sub(now),
			}
		}
	}

	var reservation *rate.Reservation
	if l.requests != nil {
		reservation = l.requests.ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); !reservation.OK() || delay > 0 {
			reservation.CancelAt(now)
			return CheckResult{
				Dimension:  DimensionRequests,
				Reason:     fmt.Sprintf("request rate limit of %d per minute exceeded", l.config.RequestsPerMinute),
				Limit:      int64(l.config.RequestsPerMinute),
				RetryAfter: max(delay, time.Second),
			}
		}
	}

	res := CheckResult{Allowed: true}
	if l.requests != nil {
		res.Limit = int64(l.config.RequestsPerMinute)
		res.Remaining = int64(math.Floor(l.requests.TokensAt(now)))
	}

	if l.concurrent != nil {
		if !l.concurrent.Acquire() {
			if reservation != nil {
				reservation.CancelAt(now)
			}
			return CheckResult{
				Dimension:  DimensionConcurrent,
				Reason:     fmt.Sprintf("concurrent request limit of %d reached", l.config.MaxConcurrent),
				Limit:      int64(l.config.MaxConcurrent),
				RetryAfter: time.Second,
			}
		}
		res.holdsSlot = true
	}
	return res
}

// Release returns the concurrency slot held by res, if any.
func (l *Limiter) Release(res CheckResult) {
	if res.holdsSlot && l.concurrent != nil {
		l.concurrent.Release()
	}
}

// RecordTokens adds actual usage to the token window.
func (l *Limiter) RecordTokens(at time.Time, tokens int) {
	if l.tokens != nil && tokens > 0 {
		l.tokens.AddAt(at, int64(tokens))
	}
}

// InFlight returns the number of held concurrency slots.
func (l *Limiter) InFlight() int64 {
	if l.concurrent == nil {
		return 0
	}
	return l.concurrent.Current()
}
