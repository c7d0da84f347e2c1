package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/processing"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/telemetry/tracing"
)

// TracerName is the instrumentation scope of gateway spans.
const TracerName = "weaver-hq/loom/pkg/gateway"

// Gateway routes requests and owns the core's shared state: the health
// monitor, the rolling statistics and the selector.
type Gateway struct {
	cfg        Config
	registry   domain.ChannelRegistry
	channels   health.ChannelSource
	selector   *routing.Selector
	dispatcher *dispatch.Dispatcher
	monitor    *health.Monitor
	stats      *aggregate.Aggregator
	accountant *processing.Processor
	budget     domain.BudgetGate
	observer   Observer
	probes     *health.ProbeLoop
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time

	closeOnce sync.Once
}

// New assembles a gateway from its collaborators.
func New(cfg Config, deps Deps) (*Gateway, error) {
	if deps.Registry == nil {
		return nil, errors.New("gateway: channel registry is required")
	}
	if deps.Adapters == nil {
		return nil, errors.New("gateway: adapter source is required")
	}
	if deps.Health == nil {
		return nil, errors.New("gateway: health monitor is required")
	}
	if deps.Stats == nil {
		deps.Stats = aggregate.New(cfg.MetricsWindow)
	}
	if deps.Accountant == nil {
		deps.Accountant = processing.NewProcessor(nil, nil)
	}
	if deps.Budget == nil {
		deps.Budget = allowAll{}
	}

	selector, err := routing.NewSelector(cfg.Routing, deps.Health, deps.Stats, deps.Accountant)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector: %w", err)
	}

	g := &Gateway{
		cfg:        cfg,
		registry:   deps.Registry,
		selector:   selector,
		monitor:    deps.Health,
		stats:      deps.Stats,
		accountant: deps.Accountant,
		budget:     deps.Budget,
		observer:   deps.Observer,
		tracer:     otel.Tracer(TracerName),
		logger:     slog.Default().With("component", "gateway"),
		now:        time.Now,
	}
	if src, ok := deps.Registry.(health.ChannelSource); ok {
		g.channels = src
	}

	dd := dispatch.Deps{
		Adapters:   deps.Adapters,
		Health:     deps.Health,
		Stats:      deps.Stats,
		Accountant: deps.Accountant,
		Budget:     deps.Budget,
		Attempts:   deps.Attempts,
		OnSuccess:  selector.Remember,
	}
	if deps.Observer != nil {
		dd.Observer = deps.Observer
	}
	g.dispatcher, err = dispatch.New(cfg.Dispatch, dd)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if deps.Prober != nil {
		if g.channels == nil {
			return nil, errors.New("gateway: probing requires a registry that lists channels")
		}
		pc := cfg.Probe
		next := pc.OnResult
		pc.OnResult = func(r health.ProbeResult) {
			if g.observer != nil {
				g.observer.ObserveProbe(r)
			}
			if next != nil {
				next(r)
			}
		}
		g.probes = health.NewProbeLoop(deps.Health, g.channels, deps.Prober, pc)
	}

	return g, nil
}

// Start launches the background probe loop, if configured.
func (g *Gateway) Start(ctx context.Context) {
	if g.probes != nil {
		g.probes.Start(ctx)
	}
}

// Close stops the probe loop. It is safe to call more than once.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		if g.probes != nil {
			g.probes.Stop()
		}
	})
}

// Route runs one request through budget reservation, selection and
// dispatch. A missing request ID is generated and a missing deadline is
// set from Config.RequestTimeout.
//
// Errors match routing.ErrNoEligibleChannel, limits.ErrBudgetExceeded,
// limits.ErrRateLimited or the dispatch sentinels.
func (g *Gateway) Route(ctx context.Context, rc *domain.RequestContext) (*dispatch.Result, error) {
	if rc == nil {
		return nil, errors.New("gateway: request context is required")
	}
	start := g.now()
	if rc.RequestID == "" {
		rc.RequestID = uuid.NewString()
	}
	if rc.Deadline.IsZero() && g.cfg.RequestTimeout > 0 {
		rc.Deadline = start.Add(g.cfg.RequestTimeout)
	}

	ctx, span := g.tracer.Start(ctx, "gateway.route",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(tracing.RequestAttributes(rc)...),
	)
	defer span.End()

	if rc.Payload != nil {
		g.accountant.PrepareRequest(rc)
	}
	span.SetAttributes(tracing.AttrPromptEstimate.Int(rc.PromptTokens))

	res, err := g.route(ctx, span, rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.finish(rc, resultOf(err), start)
		return nil, err
	}

	span.SetAttributes(
		tracing.AttrChannel.String(res.ChannelID),
		tracing.AttrAttempts.Int(res.Attempts),
	)
	if res.Streaming() {
		go func() {
			<-res.Done()
			g.finish(rc, resultOfOutcome(res.Outcome()), start)
		}()
	} else {
		g.finish(rc, ResultSuccess, start)
	}
	return res, nil
}

func (g *Gateway) route(ctx context.Context, span trace.Span, rc *domain.RequestContext) (*dispatch.Result, error) {
	decision, err := g.budget.Reserve(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("budget reservation failed: %w", err)
	}
	if !decision.Allowed {
		span.SetAttributes(tracing.AttrDenied.String(string(decision.Reason)))
		if g.observer != nil {
			g.observer.ObserveDenial(rc, decision.Reason)
		}
		return nil, limits.DenialError(rc.TenantID, decision)
	}

	snap, err := g.registry.Snapshot(ctx, rc.TenantID)
	if err != nil {
		g.abandon(ctx, rc, err)
		return nil, fmt.Errorf("failed to load channels for tenant %s: %w", rc.TenantID, err)
	}

	candidates, plan, err := g.selector.Plan(ctx, rc, snap)
	if err != nil {
		g.abandon(ctx, rc, err)
		return nil, err
	}
	span.SetAttributes(
		tracing.AttrStrategy.String(string(plan.Strategy)),
		tracing.AttrCandidates.Int(len(candidates)),
		tracing.AttrAffinityHit.Bool(plan.AffinityHit),
	)

	return g.dispatcher.Dispatch(ctx, rc, candidates)
}

// abandon commits the reservation of a request that failed before
// dispatch.
func (g *Gateway) abandon(ctx context.Context, rc *domain.RequestContext, cause error) {
	kind := domain.OutcomeFatal
	if errors.Is(ctx.Err(), context.Canceled) {
		kind = domain.OutcomeCanceled
	}
	o := domain.Outcome{
		Kind:      kind,
		Model:     rc.Model,
		Streamed:  rc.Stream,
		Error:     cause.Error(),
		Timestamp: g.now(),
	}
	if err := g.budget.Commit(context.WithoutCancel(ctx), rc.RequestID, o); err != nil {
		g.logger.Error("budget commit failed", "request_id", rc.RequestID, "error", err)
	}
}

func (g *Gateway) finish(rc *domain.RequestContext, result string, start time.Time) {
	elapsed := g.now().Sub(start)
	if g.observer != nil {
		g.observer.ObserveRoute(rc, result, elapsed)
	}
	g.logger.Debug("request routed",
		"request_id", rc.RequestID,
		"tenant", rc.TenantID,
		"model", rc.Model,
		"result", result,
		"duration", elapsed,
	)
}

// ChannelHealth returns the breaker state of every channel the monitor
// has seen.
func (g *Gateway) ChannelHealth() []health.ChannelHealth {
	return g.monitor.Snapshot()
}

// ChannelStats returns rolling statistics for every (channel, model).
func (g *Gateway) ChannelStats() []aggregate.Stats {
	return g.stats.Snapshot()
}

// RoutingStats returns the selector's decision counters.
func (g *Gateway) RoutingStats() *routing.RoutingStats {
	return g.selector.Stats()
}

// Models returns the client-facing models the request's tenant may call.
func (g *Gateway) Models(ctx context.Context, rc *domain.RequestContext) ([]string, error) {
	snap, err := g.registry.Snapshot(ctx, rc.TenantID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(snap.Models(), func(m string) bool { return !rc.Allows(m) }), nil
}

// Ready reports whether at least one active channel is eligible for
// selection. Without a listing registry the gateway is always ready.
func (g *Gateway) Ready(ctx context.Context) bool {
	if g.channels == nil {
		return true
	}
	chs, err := g.channels.Channels(ctx)
	if err != nil {
		return false
	}
	for i := range chs {
		if chs[i].Selectable() && g.monitor.IsEligible(chs[i].ID) {
			return true
		}
	}
	return false
}

// ProbeNow runs one probe round immediately and returns its results. It
// returns nil when probing is not configured.
func (g *Gateway) ProbeNow(ctx context.Context) []health.ProbeResult {
	if g.probes == nil {
		return nil
	}
	return g.probes.RunOnce(ctx)
}

// Forget drops health and statistics of channels that no longer exist.
func (g *Gateway) Forget(channelIDs ...string) {
	for _, id := range channelIDs {
		g.monitor.Forget(id)
		g.stats.Forget(id)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, context.Canceled):
		return ResultCanceled
	case errors.Is(err, limits.ErrBudgetExceeded):
		return ResultBudgetExceeded
	case errors.Is(err, limits.ErrRateLimited):
		return ResultRateLimited
	case errors.Is(err, routing.ErrNoEligibleChannel):
		return ResultNoEligibleChannel
	case errors.Is(err, dispatch.ErrUpstreamFatal):
		return ResultUpstreamFatal
	case errors.Is(err, dispatch.ErrDeadlineExceeded):
		return ResultDeadline
	case errors.Is(err, dispatch.ErrAllAttemptsFailed):
		return ResultAllAttemptsFailed
	}
	return ResultError
}

func resultOfOutcome(o domain.Outcome) string {
	switch o.Kind {
	case domain.OutcomeSuccess:
		return ResultSuccess
	case domain.OutcomeCanceled:
		return ResultCanceled
	case domain.OutcomeInterrupted:
		return ResultInterrupted
	}
	return ResultError
}
