package strategies

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing/aggregate"
)

// Kind names a load-balancing strategy. It is the value used in
// configuration files.
type Kind string

const (
	// Random orders a tier uniformly at random.
	Random Kind = "random"

	// Weighted draws a tier without replacement with probability
	// proportional to channel weight.
	Weighted Kind = "weighted"

	// LowestCost orders a tier by estimated request cost, cheapest first.
	LowestCost Kind = "lowest_cost"

	// Performance orders a tier by P95 latency and error rate.
	Performance Kind = "performance"

	// RoundRobin rotates through a tier in weighted round-robin order.
	RoundRobin Kind = "round_robin"
)

// Default is the strategy used when none is configured.
const Default = Weighted

// Kinds lists every supported strategy.
var Kinds = []Kind{Random, Weighted, LowestCost, Performance, RoundRobin}

// ErrInvalidStrategy is returned for unknown strategy names.
var ErrInvalidStrategy = errors.New("invalid routing strategy")

// InvalidStrategyError is returned when the configured routing strategy
// is not recognized.
type InvalidStrategyError struct {
	// Strategy is the invalid strategy name.
	Strategy string
}

// Error implements the error interface.
func (e *InvalidStrategyError) Error() string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("invalid routing strategy %q (available strategies: %s)",
		e.Strategy, strings.Join(names, ", "))
}

// Is implements error matching for errors.Is().
func (e *InvalidStrategyError) Is(target error) bool {
	return target == ErrInvalidStrategy
}

// Parse converts a configuration value to a Kind. The empty string maps to
// Default.
func Parse(s string) (Kind, error) {
	if s == "" {
		return Default, nil
	}
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", &InvalidStrategyError{Strategy: s}
}

// Rand is the randomness source used by strategies. *rand.Rand from
// math/rand/v2 satisfies it but is not safe for concurrent use; wrap it
// with NewLockedRand when sharing one across requests.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type globalRand struct{}

func (globalRand) IntN(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// GlobalRand returns a Rand backed by the math/rand/v2 top-level functions.
func GlobalRand() Rand {
	return globalRand{}
}

// LockedRand serializes access to a Rand.
type LockedRand struct {
	mu sync.Mutex
	r  Rand
}

// NewLockedRand wraps r.
func NewLockedRand(r Rand) *LockedRand {
	return &LockedRand{r: r}
}

// NewSeededRand returns a deterministic, concurrency-safe source. Used in
// tests and for reproducible load simulations.
func NewSeededRand(seed uint64) *LockedRand {
	return NewLockedRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// IntN implements Rand.
func (l *LockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// Float64 implements Rand.
func (l *LockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Env carries the per-request inputs a strategy may consult.
type Env struct {
	// Model is the client-facing model, used to look up statistics.
	Model string

	// Rand is the randomness source. Nil uses GlobalRand.
	Rand Rand

	// Stats returns rolling statistics for (channel, model). Nil means no
	// statistics are available.
	Stats func(channelID, model string) aggregate.Stats

	// Cost returns the estimated cost of serving the request on a
	// candidate. Nil means every candidate costs the same.
	Cost func(c domain.Candidate) float64

	// ErrorPenalty scales the error rate in the performance score.
	ErrorPenalty float64
}

func (e *Env) rand() Rand {
	if e.Rand == nil {
		return GlobalRand()
	}
	return e.Rand
}

// Strategy orders the candidates of one priority tier, best first.
//
// Order permutes tier in place and may set Candidate.Score. Implementations
// must be safe for concurrent use: the same Strategy serves every request
// of a tenant.
type Strategy interface {
	Order(env *Env, tier []domain.Candidate)
	Kind() Kind
}

// New returns the strategy implementation for kind.
func New(kind Kind) (Strategy, error) {
	switch kind {
	case Random:
		return randomStrategy{}, nil
	case Weighted, "":
		return weightedStrategy{}, nil
	case LowestCost:
		return lowestCostStrategy{}, nil
	case Performance:
		return performanceStrategy{}, nil
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	default:
		return nil, &InvalidStrategyError{Strategy: string(kind)}
	}
}

// weight returns a candidate's weight, treating non-positive values as 1 so
// that a misconfigured channel still gets a chance.
func weight(c domain.Candidate) int {
	if c.Channel.Weight < 1 {
		return 1
	}
	return c.Channel.Weight
}
