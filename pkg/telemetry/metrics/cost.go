package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/config"
)

// Token kinds used as the kind label.
const (
	TokenKindPrompt     = "prompt"
	TokenKindCompletion = "completion"
)

// CostMetrics tracks tokens and spend per channel.
//
// Metrics:
//   - loom_tokens_total: tokens by channel and kind (prompt, completion)
//   - loom_cost_total: spend in USD by channel
type CostMetrics struct {
	tokens *prometheus.CounterVec
	cost   *prometheus.CounterVec
}

// NewCostMetrics creates and registers cost metrics with the provided
// registry.
func NewCostMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Tokens by channel and kind",
			},
			[]string{"channel", "kind"},
		),

		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_total",
				Help:      "Spend in USD by channel",
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(cm.tokens, cm.cost)
	return cm
}

// RecordUsage adds the tokens and cost of one attempt. Zero values are
// skipped so failed attempts do not create empty series.
func (cm *CostMetrics) RecordUsage(channel string, promptTokens, completionTokens int, cost float64) {
	if promptTokens > 0 {
		cm.tokens.WithLabelValues(channel, TokenKindPrompt).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		cm.tokens.WithLabelValues(channel, TokenKindCompletion).Add(float64(completionTokens))
	}
	if cost > 0 {
		cm.cost.WithLabelValues(channel).Add(cost)
	}
}

// Forget deletes every series labelled with channel.
func (cm *CostMetrics) Forget(channel string) {
	cm.tokens.DeletePartialMatch(prometheus.Labels{"channel": channel})
	cm.cost.DeletePartialMatch(prometheus.Labels{"channel": channel})
}
