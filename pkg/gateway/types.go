package gateway

import (
	"context"
	"time"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/processing"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
)

// Route results reported to the Observer.
const (
	ResultSuccess           = "success"
	ResultNoEligibleChannel = "no_eligible_channel"
	ResultBudgetExceeded    = "budget_exceeded"
	ResultRateLimited       = "rate_limited"
	ResultUpstreamFatal     = "upstream_fatal"
	ResultAllAttemptsFailed = "all_attempts_failed"
	ResultDeadline          = "deadline_exceeded"
	ResultInterrupted       = "interrupted"
	ResultCanceled          = "canceled"
	ResultError             = "error"
)

// Config configures a Gateway.
type Config struct {
	Routing  routing.Config
	Dispatch dispatch.Config
	Probe    health.ProbeConfig

	// RequestTimeout is the deadline applied to requests that carry none.
	// Zero leaves such requests unbounded.
	RequestTimeout time.Duration

	// MetricsWindow is the per (channel, model) sample capacity used when
	// Deps.Stats is nil.
	MetricsWindow int
}

// Observer receives gateway events for metrics.
type Observer interface {
	dispatch.Observer

	// ObserveRoute is called once per request with its final result.
	ObserveRoute(rc *domain.RequestContext, result string, elapsed time.Duration)

	// ObserveDenial is called when the budget gate denies a request.
	ObserveDenial(rc *domain.RequestContext, reason domain.DenyReason)

	// ObserveProbe is called for every probe result.
	ObserveProbe(r health.ProbeResult)
}

// Deps are the gateway's collaborators. Registry, Adapters and Health are
// required.
type Deps struct {
	Registry domain.ChannelRegistry
	Adapters dispatch.AdapterSource
	Health   *health.Monitor

	// Stats defaults to an aggregator sized by Config.MetricsWindow.
	Stats *aggregate.Aggregator

	// Accountant defaults to the standard estimator and price table.
	Accountant *processing.Processor

	// Budget defaults to allowing everything.
	Budget domain.BudgetGate

	Attempts domain.AttemptLogger
	Observer Observer

	// Prober enables the background probe loop. The registry must then
	// also implement health.ChannelSource.
	Prober health.Prober
}

// allowAll is the budget gate used when none is configured.
type allowAll struct{}

func (allowAll) Reserve(context.Context, *domain.RequestContext) (domain.Decision, error) {
	return domain.Allow(), nil
}

func (allowAll) Commit(context.Context, string, domain.Outcome) error {
	return nil
}
