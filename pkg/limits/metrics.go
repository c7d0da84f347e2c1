package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the budget gate's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	checks             *prometheus.CounterVec
	budgetUsage        *prometheus.GaugeVec
	concurrentRequests *prometheus.GaugeVec
	enforcementActions *prometheus.CounterVec
	ledgerCommits      *prometheus.CounterVec
	checkDuration      prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		checks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "checks_total",
			Help:      "Budget gate reservations by tenant and result.",
		}, []string{"tenant", "result"}),

		budgetUsage: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "budget_usage_ratio",
			Help:      "Spend in the window divided by the limit.",
		}, []string{"tenant", "window"}),

		concurrentRequests: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "concurrent_requests",
			Help:      "Reserved and not yet committed requests.",
		}, []string{"tenant"}),

		enforcementActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "enforcement_actions_total",
			Help:      "Limit breaches by the action applied.",
		}, []string{"tenant", "action"}),

		ledgerCommits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "ledger_commits_total",
			Help:      "Ledger appends by result (inserted, duplicate, error).",
		}, []string{"result"}),

		checkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "limits",
			Name:      "check_duration_seconds",
			Help:      "Duration of Reserve.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15),
		}),
	}
}

func (m *Metrics) recordCheck(tenant, result string, seconds float64) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(tenant, result).Inc()
	m.checkDuration.Observe(seconds)
}

func (m *Metrics) recordBudgetUsage(tenant, window string, ratio float64) {
	if m == nil {
		return
	}
	m.budgetUsage.WithLabelValues(tenant, window).Set(ratio)
}

func (m *Metrics) recordConcurrent(tenant string, n int64) {
	if m == nil {
		return
	}
	m.concurrentRequests.WithLabelValues(tenant).Set(float64(n))
}

func (m *Metrics) recordEnforcement(tenant, action string) {
	if m == nil {
		return
	}
	m.enforcementActions.WithLabelValues(tenant, action).Inc()
}

func (m *Metrics) recordCommit(result string) {
	if m == nil {
		return
	}
	m.ledgerCommits.WithLabelValues(result).Inc()
}
