// Package metrics exposes the gateway's Prometheus metrics.
//
// Collector implements gateway.Observer, so the gateway reports every
// routed request, upstream attempt, failover, budget denial and probe
// result to it directly. Breaker transitions arrive through
// ObserveBreaker, which is installed as the health monitor's transition
// hook.
//
// Label values that name tenants, channels and models pass through a
// CardinalityLimiter; once the configured number of label sets is reached,
// new values are reported as "other".
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, registry)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
