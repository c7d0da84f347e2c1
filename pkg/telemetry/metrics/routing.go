package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/config"
)

// RouteMetrics tracks whole requests through the gateway.
//
// Metrics:
//   - loom_route_requests_total: requests by tenant, model and result
//   - loom_route_duration_seconds: end-to-end routing time by result
//   - loom_budget_denials_total: budget gate denials by tenant and reason
type RouteMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	denials  *prometheus.CounterVec
}

// NewRouteMetrics creates and registers route metrics with the provided
// registry.
func NewRouteMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RouteMetrics {
	rm := &RouteMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "route_requests_total",
				Help:      "Routed requests by tenant, model and result",
			},
			[]string{"tenant", "model", "result"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "route_duration_seconds",
				Help:      "Time from admission to the final outcome, including failover",
				Buckets:   cfg.RouteDurationBuckets,
			},
			[]string{"result"},
		),

		denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_denials_total",
				Help:      "Requests denied by the budget gate by tenant and reason",
			},
			[]string{"tenant", "reason"},
		),
	}

	registry.MustRegister(rm.requests, rm.duration, rm.denials)
	return rm
}

// RecordRoute records one finished request.
func (rm *RouteMetrics) RecordRoute(tenant, model, result string, elapsed time.Duration) {
	rm.requests.WithLabelValues(tenant, model, result).Inc()
	rm.duration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RecordDenial records a budget gate denial.
func (rm *RouteMetrics) RecordDenial(tenant, reason string) {
	rm.denials.WithLabelValues(tenant, reason).Inc()
}
