package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/routing/health"
)

// ChannelMetrics tracks upstream channels.
//
// Metrics:
//   - loom_attempts_total: attempts by channel, model and outcome
//   - loom_attempt_duration_seconds: attempt latency by channel
//   - loom_failovers_total: moves from one channel to the next
//   - loom_breaker_state: 0 closed, 1 open, 2 half_open
//   - loom_breaker_transitions_total: breaker state changes by target state
//   - loom_probe_results_total: probe results by channel
//   - loom_probe_duration_seconds: probe latency by channel
type ChannelMetrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	failovers       *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	probes          *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
}

// NewChannelMetrics creates and registers channel metrics with the
// provided registry.
func NewChannelMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ChannelMetrics {
	cm := &ChannelMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempts_total",
				Help:      "Upstream attempts by channel, model and outcome",
			},
			[]string{"channel", "model", "outcome"},
		),

		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempt_duration_seconds",
				Help:      "Latency of single upstream attempts",
				Buckets:   cfg.AttemptDurationBuckets,
			},
			[]string{"channel"},
		),

		failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failovers_total",
				Help:      "Failovers from one channel to the next",
			},
			[]string{"from", "to"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
			},
			[]string{"channel"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes by channel and new state",
			},
			[]string{"channel", "state"},
		),

		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probe_results_total",
				Help:      "Health probe results by channel",
			},
			[]string{"channel", "result"},
		),

		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "probe_duration_seconds",
				Help:      "Health probe latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		cm.attempts,
		cm.attemptDuration,
		cm.failovers,
		cm.breakerState,
		cm.transitions,
		cm.probes,
		cm.probeDuration,
	)
	return cm
}

// RecordAttempt records one upstream attempt.
func (cm *ChannelMetrics) RecordAttempt(channel, model, outcome string, latency time.Duration) {
	cm.attempts.WithLabelValues(channel, model, outcome).Inc()
	if latency > 0 {
		cm.attemptDuration.WithLabelValues(channel).Observe(latency.Seconds())
	}
}

// RecordFailover records a move from one channel to the next.
func (cm *ChannelMetrics) RecordFailover(from, to string) {
	cm.failovers.WithLabelValues(from, to).Inc()
}

// SetBreakerState sets the breaker gauge of a channel.
func (cm *ChannelMetrics) SetBreakerState(channel string, state health.State) {
	cm.breakerState.WithLabelValues(channel).Set(float64(state))
}

// RecordTransition counts a breaker state change.
func (cm *ChannelMetrics) RecordTransition(channel string, to health.State) {
	cm.transitions.WithLabelValues(channel, to.String()).Inc()
}

// RecordProbe records a probe result.
func (cm *ChannelMetrics) RecordProbe(channel, result string, latency time.Duration) {
	cm.probes.WithLabelValues(channel, result).Inc()
	cm.probeDuration.WithLabelValues(channel).Observe(latency.Seconds())
}

// Forget deletes every series labelled with channel.
func (cm *ChannelMetrics) Forget(channel string) {
	match := prometheus.Labels{"channel": channel}
	cm.attempts.DeletePartialMatch(match)
	cm.attemptDuration.DeletePartialMatch(match)
	cm.breakerState.DeletePartialMatch(match)
	cm.transitions.DeletePartialMatch(match)
	cm.probes.DeletePartialMatch(match)
	cm.probeDuration.DeletePartialMatch(match)
	cm.failovers.DeletePartialMatch(prometheus.Labels{"from": channel})
	cm.failovers.DeletePartialMatch(prometheus.Labels{"to": channel})
}
