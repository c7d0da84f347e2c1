package strategies

import (
	"sync/atomic"

	"weaver-hq/loom/pkg/domain"
)

// counterLimit bounds the rotation counter.
const counterLimit = 1_000_000_000

// RoundRobinStrategy implements weighted round-robin load balancing across
// a tier. Each call advances a shared counter over a weighted slot list
// (each channel appears weight times) and rotates the tier so the channel
// owning the current slot comes first. The remaining channels follow in
// their configured order as failover candidates.
//
// The strategy is thread-safe and uses an atomic counter for concurrent
// access. The counter is reset before it grows unbounded.
type RoundRobinStrategy struct {
	counter atomic.Int64
}

// NewRoundRobinStrategy creates a new round-robin strategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{}
}

// Kind implements Strategy.
func (s *RoundRobinStrategy) Kind() Kind { return RoundRobin }

// Order rotates tier in place.
func (s *RoundRobinStrategy) Order(_ *Env, tier []domain.Candidate) {
	if len(tier) < 2 {
		return
	}

	slots := 0
	for _, c := range tier {
		slots += weight(c)
	}

	count := s.counter.Add(1) - 1
	if count >= counterLimit {
		s.counter.CompareAndSwap(count+1, 0)
		count = 0
	}
	slot := int(count % int64(slots))

	first := 0
	for i, c := range tier {
		slot -= weight(c)
		if slot < 0 {
			first = i
			break
		}
	}

	rotate(tier, first)
}

// Reset resets the round-robin counter.
func (s *RoundRobinStrategy) Reset() {
	s.counter.Store(0)
}

// rotate moves tier[k] to the front while keeping the cyclic order.
func rotate(tier []domain.Candidate, k int) {
	if k == 0 {
		return
	}
	reverse(tier[:k])
	reverse(tier[k:])
	reverse(tier)
}

func reverse(s []domain.Candidate) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
