package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicRoutingStats implements thread-safe routing statistics using atomic operations.
// All counters are updated atomically for lock-free performance.
type AtomicRoutingStats struct {
	// totalRequests is the total number of Select calls
	totalRequests atomic.Int64

	// firstChoice tracks how often each channel headed the candidate list
	// Uses sync.Map for thread-safe concurrent access
	firstChoice sync.Map // map[string]*atomic.Int64

	// strategyUseCount tracks how many times each strategy was used
	strategyUseCount sync.Map // map[string]*atomic.Int64

	// healthFilteredCount is the number of selections where open breakers were filtered
	healthFilteredCount atomic.Int64

	// affinityHits is the number of selections led by a remembered channel
	affinityHits atomic.Int64

	// pinned is the number of selections led by a preferred channel
	pinned atomic.Int64

	// errors is the number of selections without an eligible channel
	errors atomic.Int64

	// lastResetTime is when statistics were last reset
	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewAtomicRoutingStats creates a new atomic routing statistics tracker.
func NewAtomicRoutingStats() *AtomicRoutingStats {
	return &AtomicRoutingStats{
		lastResetTime: time.Now(),
	}
}

// IncrementTotal increments the total request counter.
func (s *AtomicRoutingStats) IncrementTotal() {
	s.totalRequests.Add(1)
}

// IncrementFirstChoice increments the counter for the channel that headed
// a candidate list.
func (s *AtomicRoutingStats) IncrementFirstChoice(channelID string) {
	val, _ := s.firstChoice.LoadOrStore(channelID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementStrategy increments the counter for a specific strategy.
func (s *AtomicRoutingStats) IncrementStrategy(strategyName string) {
	val, _ := s.strategyUseCount.LoadOrStore(strategyName, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementHealthFiltered increments the health filtered counter.
func (s *AtomicRoutingStats) IncrementHealthFiltered() {
	s.healthFilteredCount.Add(1)
}

// IncrementAffinityHit increments the affinity hit counter.
func (s *AtomicRoutingStats) IncrementAffinityHit() {
	s.affinityHits.Add(1)
}

// IncrementPinned increments the preferred channel counter.
func (s *AtomicRoutingStats) IncrementPinned() {
	s.pinned.Add(1)
}

// IncrementErrors increments the error counter.
func (s *AtomicRoutingStats) IncrementErrors() {
	s.errors.Add(1)
}

// Snapshot returns a point-in-time snapshot of the statistics.
// The returned RoutingStats struct is safe to read without locks.
func (s *AtomicRoutingStats) Snapshot() *RoutingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	firstChoice := make(map[string]int64)
	s.firstChoice.Range(func(key, value any) bool {
		firstChoice[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	strategyUse := make(map[string]int64)
	s.strategyUseCount.Range(func(key, value any) bool {
		strategyUse[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &RoutingStats{
		TotalRequests:       s.totalRequests.Load(),
		FirstChoice:         firstChoice,
		StrategyUseCount:    strategyUse,
		HealthFilteredCount: s.healthFilteredCount.Load(),
		AffinityHits:        s.affinityHits.Load(),
		Pinned:              s.pinned.Load(),
		Errors:              s.errors.Load(),
		LastResetTime:       s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *AtomicRoutingStats) Reset() {
	s.totalRequests.Store(0)
	s.healthFilteredCount.Store(0)
	s.affinityHits.Store(0)
	s.pinned.Store(0)
	s.errors.Store(0)

	s.firstChoice.Range(func(key, _ any) bool {
		s.firstChoice.Delete(key)
		return true
	})
	s.strategyUseCount.Range(func(key, _ any) bool {
		s.strategyUseCount.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
