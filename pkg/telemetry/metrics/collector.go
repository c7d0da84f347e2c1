package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/gateway"
	"weaver-hq/loom/pkg/routing/health"
)

// OverflowLabel replaces a label value once the cardinality limit is
// reached.
const OverflowLabel = "other"

// Collector owns every routing metric and implements gateway.Observer.
// A disabled collector records nothing but still serves an empty
// registry.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	route   *RouteMetrics
	channel *ChannelMetrics
	cost    *CostMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ gateway.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics with
// registry. A nil registry gets a fresh one.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "loom"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RouteDurationBuckets) == 0 {
		cfg.RouteDurationBuckets = config.DefaultRouteDurationBuckets
	}
	if len(cfg.AttemptDurationBuckets) == 0 {
		cfg.AttemptDurationBuckets = config.DefaultAttemptDurationBuckets
	}
	if cfg.CardinalityLimit <= 0 {
		cfg.CardinalityLimit = config.DefaultCardinalityLimit
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		route:              NewRouteMetrics(cfg, registry),
		channel:            NewChannelMetrics(cfg, registry),
		cost:               NewCostMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(cfg.CardinalityLimit),
	}
}

// ObserveRoute implements gateway.Observer.
func (c *Collector) ObserveRoute(rc *domain.RequestContext, result string, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	tenant, model := c.limit("route", rc.TenantID, rc.Model)
	c.route.RecordRoute(tenant, model, result, elapsed)
}

// ObserveDenial implements gateway.Observer.
func (c *Collector) ObserveDenial(rc *domain.RequestContext, reason domain.DenyReason) {
	if !c.config.Enabled {
		return
	}
	tenant, _ := c.limit("denial", rc.TenantID, "")
	c.route.RecordDenial(tenant, string(reason))
}

// ObserveAttempt implements dispatch.Observer.
func (c *Collector) ObserveAttempt(_ *domain.RequestContext, o domain.Outcome) {
	if !c.config.Enabled {
		return
	}
	channel, model := c.limit("attempt", o.ChannelID, o.Model)
	c.channel.RecordAttempt(channel, model, string(o.Kind), o.Latency)
	c.cost.RecordUsage(channel, o.PromptTokens, o.CompletionTokens, o.Cost)
}

// ObserveFailover implements dispatch.Observer.
func (c *Collector) ObserveFailover(_ *domain.RequestContext, from, to string) {
	if !c.config.Enabled {
		return
	}
	from, to = c.limit("failover", from, to)
	c.channel.RecordFailover(from, to)
}

// ObserveProbe implements gateway.Observer.
func (c *Collector) ObserveProbe(r health.ProbeResult) {
	if !c.config.Enabled {
		return
	}
	result := "ok"
	if !r.OK() {
		result = "error"
	}
	channel, _ := c.limit("probe", r.ChannelID, "")
	c.channel.RecordProbe(channel, result, r.Latency)
}

// ObserveBreaker records a breaker transition. It has the signature of
// health.Config.OnTransition.
func (c *Collector) ObserveBreaker(channelID string, from, to health.State) {
	if !c.config.Enabled {
		return
	}
	channel, _ := c.limit("breaker", channelID, "")
	c.channel.SetBreakerState(channel, to)
	if from != to {
		c.channel.RecordTransition(channel, to)
	}
}

// ForgetChannel drops the per-channel series of a removed channel.
func (c *Collector) ForgetChannel(channelID string) {
	c.channel.Forget(channelID)
	c.cost.Forget(channelID)
	c.cardinalityLimiter.Forget(channelID)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// limit passes the two variable labels of a family through the
// cardinality limiter. Over the limit, both collapse to OverflowLabel.
func (c *Collector) limit(family, a, b string) (string, string) {
	key := family + "\x00" + a + "\x00" + b
	if c.cardinalityLimiter.Allow(key) {
		return a, b
	}
	if b != "" {
		b = OverflowLabel
	}
	return OverflowLabel, b
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be used: it was seen before or
// there is still room for it.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

// Forget releases every label set containing value, making room for new
// ones.
func (cl *CardinalityLimiter) Forget(value string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for key := range cl.current {
		for _, part := range strings.Split(key, "\x00")[1:] {
			if part == value {
				delete(cl.current, key)
				break
			}
		}
	}
}
