package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/processing"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/telemetry/tracing"
)

// TracerName is the instrumentation scope of dispatch spans.
const TracerName = "weaver-hq/loom/pkg/dispatch"

// errAttemptTimeout is the cancellation cause of a stream attempt whose
// first chunk did not arrive in time.
var errAttemptTimeout = errors.New("attempt timeout")

// Dispatcher performs the upstream calls for a routed request.
//
// It walks the candidate list in order, makes at most MaxAttempts
// attempts, and fails over on transient errors. Fatal errors and caller
// cancellation end the request immediately. Every attempt is reported to
// the statistics recorder, the health tracker and the attempt logger; the
// budget gate is committed exactly once per request, after the final
// attempt or, for streams, after the relay ends.
//
// Dispatcher is safe for concurrent use and holds no per-request state.
type Dispatcher struct {
	cfg    Config
	deps   Deps
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time
}

// New creates a dispatcher.
func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Adapters == nil {
		return nil, errors.New("dispatch: adapter source is required")
	}
	if deps.Health == nil {
		return nil, errors.New("dispatch: health tracker is required")
	}
	cfg.applyDefaults()

	if deps.Accountant == nil {
		deps.Accountant = processing.NewProcessor(nil, nil)
	}
	if deps.Attempts == nil {
		deps.Attempts = domain.NopAttemptLogger{}
	}

	return &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		tracer: otel.Tracer(TracerName),
		logger: slog.Default().With("component", "dispatch"),
		now:    time.Now,
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Dispatch attempts candidates in order until one succeeds.
//
// On success the returned Result carries either the full response or, for
// streaming requests, a channel relaying chunks. Errors are
// *UpstreamError (fatal), *AllAttemptsFailedError, *DeadlineExceededError
// or the caller's context error.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *domain.RequestContext, candidates []domain.Candidate) (*Result, error) {
	reqCtx, cancel := d.requestContext(ctx, rc)

	var (
		failures []AttemptSummary
		skipped  []string
		last     domain.Outcome
		lastErr  error
		attempt  int
		prev     string
	)

	for _, cand := range candidates {
		if attempt >= d.cfg.MaxAttempts || reqCtx.Err() != nil {
			break
		}

		id := cand.ChannelID()
		permit, ok := d.deps.Health.Acquire(id)
		if !ok {
			skipped = append(skipped, id)
			d.logger.Debug("candidate skipped, circuit not acquirable",
				"request_id", rc.RequestID,
				"channel", id,
			)
			continue
		}

		attempt++
		if prev != "" {
			d.logger.Info("failing over",
				"request_id", rc.RequestID,
				"from", prev,
				"to", id,
				"attempt", attempt,
			)
			if d.deps.Observer != nil {
				d.deps.Observer.ObserveFailover(rc, prev, id)
			}
		}
		prev = id

		var (
			res *Result
			o   domain.Outcome
			err error
		)
		if rc.Stream {
			res, o, err = d.attemptStream(reqCtx, cancel, rc, cand, permit, attempt)
		} else {
			res, o, err = d.attemptComplete(reqCtx, rc, cand, permit, attempt)
		}

		if err == nil {
			if !rc.Stream {
				cancel()
				d.commit(ctx, rc, o)
				res.finish(o)
			}
			return res, nil
		}

		switch o.Kind {
		case domain.OutcomeCanceled, domain.OutcomeFatal:
			cancel()
			d.commit(ctx, rc, o)
			return nil, err
		}

		failures = append(failures, summarize(o))
		last, lastErr = o, err
	}

	reqErr := reqCtx.Err()
	cancel()

	if errors.Is(ctx.Err(), context.Canceled) {
		o := d.terminalOutcome(rc, attempt, domain.OutcomeCanceled, "canceled by caller")
		d.commit(ctx, rc, o)
		return nil, ctx.Err()
	}

	if attempt == 0 {
		last = d.terminalOutcome(rc, 0, domain.OutcomeTransient, "no candidate could be acquired")
	}

	if reqErr != nil {
		d.logger.Warn("request deadline exceeded",
			"request_id", rc.RequestID,
			"attempts", attempt,
		)
		d.commit(ctx, rc, last)
		return nil, &DeadlineExceededError{Attempts: failures}
	}

	d.logger.Warn("all attempts failed",
		"request_id", rc.RequestID,
		"model", rc.Model,
		"attempts", attempt,
		"skipped", len(skipped),
	)
	d.commit(ctx, rc, last)
	return nil, &AllAttemptsFailedError{Attempts: failures, Skipped: skipped, last: lastErr}
}

func (d *Dispatcher) requestContext(ctx context.Context, rc *domain.RequestContext) (context.Context, context.CancelFunc) {
	if rc.Deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, rc.Deadline)
}

// attemptComplete performs one non-streaming attempt. The attempt timeout
// is bounded by the request deadline through context inheritance.
func (d *Dispatcher) attemptComplete(reqCtx context.Context, rc *domain.RequestContext, cand domain.Candidate, permit health.Permit, attempt int) (*Result, domain.Outcome, error) {
	ctx, span := d.startSpan(reqCtx, rc, cand, attempt)
	defer span.End()

	o := d.baseOutcome(rc, cand, attempt)
	start := time.Now()

	adapter, err := d.deps.Adapters.For(cand.Channel)
	var resp *domain.Response
	if err == nil {
		actx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		resp, err = adapter.Complete(actx, cand.Channel, cand.Mapping, rc.Payload)
		cancel()
	}
	o.Latency = time.Since(start)

	if err == nil && resp == nil {
		err = &providers.ParseError{Channel: cand.ChannelID(), Cause: errors.New("adapter returned no response")}
	}
	if err != nil {
		return nil, o, d.fail(reqCtx, span, rc, cand, permit, &o, err)
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		o.PromptTokens = resp.Usage.PromptTokens
		o.CompletionTokens = resp.Usage.CompletionTokens
	} else {
		o.PromptTokens = rc.PromptTokens
		o.CompletionTokens = d.deps.Accountant.CountTokens(cand.Mapping.Target, resp.Content)
	}
	o.Cost = d.deps.Accountant.Cost(cand.Channel, cand.Mapping, o.PromptTokens, o.CompletionTokens)
	o.Kind = domain.OutcomeSuccess
	o.Timestamp = d.now()

	d.report(reqCtx, rc, cand, permit, o)
	tracing.SetUsage(span, o)

	res := newResult()
	res.Response = resp
	res.ChannelID = cand.ChannelID()
	res.Model = cand.Mapping.Target
	res.Attempts = attempt
	return res, o, nil
}

// fail classifies an attempt error, reports the attempt and returns the
// error the dispatcher surfaces for it.
func (d *Dispatcher) fail(reqCtx context.Context, span trace.Span, rc *domain.RequestContext, cand domain.Candidate, permit health.Permit, o *domain.Outcome, err error) error {
	kind, status := providers.Classify(err)
	switch {
	case errors.Is(reqCtx.Err(), context.Canceled):
		kind = domain.OutcomeCanceled
	case kind == domain.OutcomeCanceled:
		// The attempt context was cancelled by the dispatcher itself, not
		// the caller.
		kind = domain.OutcomeTransient
	}

	o.Kind = kind
	o.StatusCode = status
	o.Error = err.Error()
	o.Timestamp = d.now()
	d.report(reqCtx, rc, cand, permit, *o)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))

	if kind == domain.OutcomeCanceled {
		return context.Canceled
	}
	return &UpstreamError{
		ChannelID:  cand.ChannelID(),
		Model:      cand.Mapping.Target,
		Attempt:    o.Attempt,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

// report fans one attempt outcome out to every sink.
func (d *Dispatcher) report(ctx context.Context, rc *domain.RequestContext, cand domain.Candidate, permit health.Permit, o domain.Outcome) {
	id := cand.ChannelID()

	if d.deps.Stats != nil {
		d.deps.Stats.Record(id, rc.Model, o)
	}
	if o.Kind == domain.OutcomeCanceled {
		d.deps.Health.Release(permit)
	} else {
		d.deps.Health.Done(permit, o)
	}
	d.deps.Attempts.RecordAttempt(context.WithoutCancel(ctx), rc.RequestID, id, o)
	if d.deps.Observer != nil {
		d.deps.Observer.ObserveAttempt(rc, o)
	}

	level := slog.LevelDebug
	switch o.Kind {
	case domain.OutcomeTransient, domain.OutcomeInterrupted:
		level = slog.LevelInfo
	case domain.OutcomeFatal:
		level = slog.LevelWarn
	}
	d.logger.Log(ctx, level, "attempt finished",
		"request_id", rc.RequestID,
		"channel", id,
		"model", rc.Model,
		"attempt", o.Attempt,
		"outcome", string(o.Kind),
		"status", o.StatusCode,
		"latency", o.Latency,
		"error", o.Error,
	)
}

// commit settles the request with the budget gate and notifies OnSuccess.
// Callers guarantee it runs once per request.
func (d *Dispatcher) commit(ctx context.Context, rc *domain.RequestContext, o domain.Outcome) {
	if d.deps.Budget != nil {
		if err := d.deps.Budget.Commit(context.WithoutCancel(ctx), rc.RequestID, o); err != nil {
			d.logger.Error("budget commit failed",
				"request_id", rc.RequestID,
				"error", err,
			)
		}
	}
	if o.Success() && d.deps.OnSuccess != nil {
		d.deps.OnSuccess(rc, o.ChannelID)
	}
}

func (d *Dispatcher) baseOutcome(rc *domain.RequestContext, cand domain.Candidate, attempt int) domain.Outcome {
	return domain.Outcome{
		ChannelID:   cand.ChannelID(),
		Model:       rc.Model,
		MappedModel: cand.Mapping.Target,
		Attempt:     attempt,
		Streamed:    rc.Stream,
	}
}

// terminalOutcome is the outcome committed when the request ends without
// an attempt that could stand for it.
func (d *Dispatcher) terminalOutcome(rc *domain.RequestContext, attempt int, kind domain.OutcomeKind, msg string) domain.Outcome {
	return domain.Outcome{
		Kind:      kind,
		Model:     rc.Model,
		Attempt:   attempt,
		Streamed:  rc.Stream,
		Error:     msg,
		Timestamp: d.now(),
	}
}

func (d *Dispatcher) startSpan(ctx context.Context, rc *domain.RequestContext, cand domain.Candidate, attempt int) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "dispatch.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.CandidateAttributes(cand, attempt)...),
		trace.WithAttributes(
			tracing.AttrRequestID.String(rc.RequestID),
			tracing.AttrStream.Bool(rc.Stream),
		),
	)
}
