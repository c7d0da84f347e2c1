package routing

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/strategies"
)

// DefaultCompletionEstimate is the completion size assumed for cost
// ordering when the request does not set max_tokens.
const DefaultCompletionEstimate = 256

// HealthChecker reports circuit breaker eligibility.
type HealthChecker interface {
	IsEligible(channelID string) bool
}

// StatsSource provides rolling performance statistics.
type StatsSource interface {
	Percentiles(channelID, model string) aggregate.Stats
}

// CostEstimator prices a request on a channel.
type CostEstimator interface {
	Estimate(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) float64
}

// Selector turns a channel snapshot into an ordered candidate list.
//
// Selection filters the snapshot, partitions the survivors into priority
// tiers (highest first), orders each tier with the tenant's strategy and
// concatenates the tiers. The result is best-first and doubles as the
// failover order for the dispatcher.
//
// Selector is safe for concurrent use. It holds no per-request state; the
// only shared state is the per-tenant strategy instances, the affinity
// cache and the statistics counters.
type Selector struct {
	cfg      Config
	health   HealthChecker
	stats    StatsSource
	costs    CostEstimator
	rand     strategies.Rand
	affinity *AffinityCache

	// strategies caches one instance per (tenant, kind) so that stateful
	// strategies keep separate rotation counters per tenant.
	strategies sync.Map // tenant + kind -> strategies.Strategy

	counters *AtomicRoutingStats
	logger   *slog.Logger
}

// NewSelector creates a selector. stats and costs may be nil, in which case
// the performance and lowest_cost strategies see neutral inputs.
func NewSelector(cfg Config, health HealthChecker, stats StatsSource, costs CostEstimator) (*Selector, error) {
	if health == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = strategies.Default
	}
	if _, err := strategies.New(cfg.Strategy); err != nil {
		return nil, err
	}

	s := &Selector{
		cfg:      cfg,
		health:   health,
		stats:    stats,
		costs:    costs,
		rand:     strategies.GlobalRand(),
		counters: NewAtomicRoutingStats(),
		logger:   slog.Default().With("component", "routing.selector"),
	}

	if cfg.Affinity.Enabled {
		cache, err := NewAffinityCache(cfg.Affinity.Size, cfg.Affinity.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create affinity cache: %w", err)
		}
		s.affinity = cache
	}

	return s, nil
}

// SetRand replaces the randomness source. It must be called before the
// selector is shared.
func (s *Selector) SetRand(r strategies.Rand) {
	s.rand = r
}

// Select returns the ordered candidate list for one request.
func (s *Selector) Select(ctx context.Context, rc *domain.RequestContext, snap *domain.Snapshot) ([]domain.Candidate, error) {
	candidates, _, err := s.Plan(ctx, rc, snap)
	return candidates, err
}

// Plan is Select with a description of the decision.
func (s *Selector) Plan(ctx context.Context, rc *domain.RequestContext, snap *domain.Snapshot) ([]domain.Candidate, Decision, error) {
	s.counters.IncrementTotal()

	if err := ctx.Err(); err != nil {
		s.counters.IncrementErrors()
		return nil, Decision{}, err
	}
	if snap == nil {
		s.counters.IncrementErrors()
		return nil, Decision{}, ErrNilSnapshot
	}

	candidates, nerr := s.filter(rc, snap)
	decision := Decision{Filtered: len(nerr.Unhealthy)}
	if decision.Filtered > 0 {
		s.counters.IncrementHealthFiltered()
	}
	if len(candidates) == 0 {
		s.counters.IncrementErrors()
		s.logger.Debug("no eligible channel",
			"request_id", rc.RequestID,
			"tenant", snap.TenantID,
			"model", rc.Model,
			"channels", nerr.Channels,
			"unhealthy", len(nerr.Unhealthy),
		)
		return nil, decision, nerr
	}

	kind := s.kindFor(snap)
	strategy := s.strategyFor(snap.TenantID, kind)
	decision.Strategy = kind
	s.counters.IncrementStrategy(string(kind))

	env := &strategies.Env{
		Model:        rc.Model,
		Rand:         s.rand,
		ErrorPenalty: s.cfg.ErrorPenalty,
	}
	if s.stats != nil {
		env.Stats = s.stats.Percentiles
	}
	if s.costs != nil {
		completion := rc.MaxTokens()
		if completion <= 0 {
			completion = DefaultCompletionEstimate
		}
		env.Cost = func(c domain.Candidate) float64 {
			return s.costs.Estimate(c.Channel, c.Mapping, rc.PromptTokens, completion)
		}
	}

	// Stable so that equal priorities keep snapshot order before the
	// strategy reorders them.
	slices.SortStableFunc(candidates, func(a, b domain.Candidate) int {
		return cmp.Compare(b.Channel.Priority, a.Channel.Priority)
	})
	for start := 0; start < len(candidates); {
		end := start + 1
		for end < len(candidates) && candidates[end].Channel.Priority == candidates[start].Channel.Priority {
			end++
		}
		strategy.Order(env, candidates[start:end])
		decision.Tiers++
		start = end
	}

	if s.affinity != nil && rc.AffinityKey != "" {
		if id, ok := s.affinity.Lookup(snap.TenantID, rc.AffinityKey, rc.Model); ok {
			if i := slices.IndexFunc(candidates, func(c domain.Candidate) bool { return c.ChannelID() == id }); i >= 0 {
				head := candidates[i]
				copy(candidates[1:i+1], candidates[:i])
				candidates[0] = head
				decision.AffinityHit = true
				s.counters.IncrementAffinityHit()
			}
		}
	}

	if rc.PreferredChannel != "" {
		pinned, ok := s.cfg.Manual.Pin(candidates, rc.PreferredChannel)
		if len(pinned) == 0 {
			s.counters.IncrementErrors()
			nerr.Preferred = rc.PreferredChannel
			s.logger.Debug("preferred channel unavailable",
				"request_id", rc.RequestID,
				"tenant", snap.TenantID,
				"channel", rc.PreferredChannel,
			)
			return nil, decision, nerr
		}
		candidates = pinned
		if ok {
			decision.Pinned = true
			s.counters.IncrementPinned()
		}
	}

	s.counters.IncrementFirstChoice(candidates[0].ChannelID())
	s.logger.Debug("candidates selected",
		"request_id", rc.RequestID,
		"tenant", snap.TenantID,
		"model", rc.Model,
		"strategy", string(kind),
		"candidates", len(candidates),
		"first", candidates[0].ChannelID(),
		"tiers", decision.Tiers,
		"affinity_hit", decision.AffinityHit,
		"pinned", decision.Pinned,
	)

	return candidates, decision, nil
}

// filter applies status, model, tenant restriction and breaker checks. The
// returned error describes the exclusions even when candidates remain.
func (s *Selector) filter(rc *domain.RequestContext, snap *domain.Snapshot) ([]domain.Candidate, *NoEligibleChannelError) {
	nerr := &NoEligibleChannelError{
		TenantID: snap.TenantID,
		Model:    rc.Model,
		Channels: snap.Len(),
	}
	if !rc.Allows(rc.Model) {
		nerr.Restricted = true
		return nil, nerr
	}

	candidates := make([]domain.Candidate, 0, snap.Len())
	for i := range snap.Channels {
		ch := &snap.Channels[i]
		if !ch.Selectable() {
			nerr.Inactive++
			continue
		}
		mapping, ok := ch.Resolve(rc.Model)
		if !ok {
			nerr.Unsupported++
			continue
		}
		if !s.health.IsEligible(ch.ID) {
			nerr.Unhealthy = append(nerr.Unhealthy, ch.ID)
			continue
		}
		candidates = append(candidates, domain.Candidate{Channel: ch, Mapping: mapping})
	}
	return candidates, nerr
}

// Remember records the channel that served a request for cache affinity.
// It is a no-op when affinity is disabled or the request has no key.
func (s *Selector) Remember(rc *domain.RequestContext, channelID string) {
	if s.affinity == nil || rc.AffinityKey == "" || channelID == "" {
		return
	}
	s.affinity.Remember(rc.TenantID, rc.AffinityKey, rc.Model, channelID)
}

// Stats returns a snapshot of the selection counters.
func (s *Selector) Stats() *RoutingStats {
	return s.counters.Snapshot()
}

// DefaultStrategy returns the strategy used for tenants without an
// override.
func (s *Selector) DefaultStrategy() strategies.Kind {
	return s.cfg.Strategy
}

func (s *Selector) kindFor(snap *domain.Snapshot) strategies.Kind {
	if snap.Strategy == "" {
		return s.cfg.Strategy
	}
	kind, err := strategies.Parse(snap.Strategy)
	if err != nil {
		s.logger.Warn("ignoring invalid tenant strategy",
			"tenant", snap.TenantID,
			"strategy", snap.Strategy,
			"default", string(s.cfg.Strategy),
		)
		return s.cfg.Strategy
	}
	return kind
}

func (s *Selector) strategyFor(tenantID string, kind strategies.Kind) strategies.Strategy {
	key := tenantID + "\x00" + string(kind)
	if st, ok := s.strategies.Load(key); ok {
		return st.(strategies.Strategy)
	}
	// kind was validated by Parse or NewSelector.
	st, _ := strategies.New(kind)
	actual, _ := s.strategies.LoadOrStore(key, st)
	return actual.(strategies.Strategy)
}
