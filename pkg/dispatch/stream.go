package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/telemetry/tracing"
)

// attemptStream opens a stream on one candidate and waits for its first
// chunk. The attempt timeout covers only that wait. Once the first chunk
// is in hand the attempt has succeeded for failover purposes and a relay
// goroutine takes over the rest of the stream, the request cancel func
// and the final commit.
func (d *Dispatcher) attemptStream(reqCtx context.Context, cancelReq context.CancelFunc, rc *domain.RequestContext, cand domain.Candidate, permit health.Permit, attempt int) (*Result, domain.Outcome, error) {
	spanCtx, span := d.startSpan(reqCtx, rc, cand, attempt)

	o := d.baseOutcome(rc, cand, attempt)
	start := time.Now()

	adapter, err := d.deps.Adapters.For(cand.Channel)
	if err != nil {
		o.Latency = time.Since(start)
		uerr := d.fail(reqCtx, span, rc, cand, permit, &o, err)
		span.End()
		return nil, o, uerr
	}

	attemptCtx, cancelAttempt := context.WithCancelCause(spanCtx)
	timer := time.AfterFunc(d.cfg.AttemptTimeout, func() {
		cancelAttempt(errAttemptTimeout)
	})

	abort := func(err error) (*Result, domain.Outcome, error) {
		timer.Stop()
		if errors.Is(context.Cause(attemptCtx), errAttemptTimeout) {
			err = &providers.TimeoutError{Channel: cand.ChannelID(), Elapsed: time.Since(start)}
		}
		cancelAttempt(nil)
		o.Latency = time.Since(start)
		uerr := d.fail(reqCtx, span, rc, cand, permit, &o, err)
		span.End()
		return nil, o, uerr
	}

	stream, err := adapter.Stream(attemptCtx, cand.Channel, cand.Mapping, rc.Payload)
	if err != nil {
		return abort(err)
	}

	var first domain.Chunk
	select {
	case c, ok := <-stream:
		if !ok {
			if cause := context.Cause(attemptCtx); cause != nil {
				return abort(cause)
			}
			return abort(&providers.StreamError{Channel: cand.ChannelID(), Message: "stream closed before the first chunk"})
		}
		if c.Err != nil {
			return abort(c.Err)
		}
		first = c
	case <-attemptCtx.Done():
		return abort(context.Cause(attemptCtx))
	}

	if !timer.Stop() {
		// The timer fired while the first chunk was being received.
		return abort(errAttemptTimeout)
	}

	res := newResult()
	out := make(chan domain.Chunk, providers.StreamBuffer)
	res.Stream = out
	res.ChannelID = cand.ChannelID()
	res.Model = cand.Mapping.Target
	res.Attempts = attempt

	r := &relay{
		d:             d,
		rc:            rc,
		cand:          cand,
		permit:        permit,
		outcome:       o,
		start:         start,
		span:          span,
		reqCtx:        reqCtx,
		cancelReq:     cancelReq,
		attemptCtx:    attemptCtx,
		cancelAttempt: cancelAttempt,
		in:            stream,
		out:           out,
		res:           res,
	}
	go r.run(first)

	return res, o, nil
}

// relay forwards the chunks of an accepted stream to the caller and
// settles the request when the stream ends.
type relay struct {
	d       *Dispatcher
	rc      *domain.RequestContext
	cand    domain.Candidate
	permit  health.Permit
	outcome domain.Outcome
	start   time.Time
	span    trace.Span

	reqCtx        context.Context
	cancelReq     context.CancelFunc
	attemptCtx    context.Context
	cancelAttempt context.CancelCauseFunc

	in  <-chan domain.Chunk
	out chan domain.Chunk
	res *Result
}

func (r *relay) run(first domain.Chunk) {
	defer r.cancelReq()
	defer r.cancelAttempt(nil)
	defer close(r.out)

	var (
		prompt     = r.rc.PromptTokens
		completion int
		failure    error
		canceled   bool
	)

	// forward assigns the chunk's token count and delivers it. Only
	// delivered chunks count toward the completion total.
	forward := func(c domain.Chunk) bool {
		c.Tokens = r.tokens(c, completion)
		if c.Usage != nil && c.Usage.PromptTokens > 0 {
			prompt = c.Usage.PromptTokens
		}
		select {
		case r.out <- c:
			completion += c.Tokens
			return true
		case <-r.reqCtx.Done():
			return false
		}
	}

	ended := func() {
		if errors.Is(r.reqCtx.Err(), context.Canceled) {
			canceled = true
			return
		}
		failure = r.reqCtx.Err()
	}

	if !forward(first) {
		ended()
	} else {
	loop:
		for {
			select {
			case c, ok := <-r.in:
				if !ok {
					if r.reqCtx.Err() != nil {
						ended()
					}
					break loop
				}
				if c.Err != nil {
					failure = c.Err
					break loop
				}
				if !forward(c) {
					ended()
					break loop
				}
			case <-r.reqCtx.Done():
				ended()
				break loop
			}
		}
	}

	o := r.outcome
	o.Latency = time.Since(r.start)
	o.PromptTokens = prompt
	o.CompletionTokens = completion
	o.Cost = r.d.deps.Accountant.Cost(r.cand.Channel, r.cand.Mapping, prompt, completion)
	o.Timestamp = r.d.now()

	switch {
	case canceled:
		o.Kind = domain.OutcomeCanceled
		o.Error = "canceled by caller"
	case failure != nil:
		o.Kind = domain.OutcomeInterrupted
		_, o.StatusCode = providers.Classify(failure)
		o.Error = failure.Error()
		r.deliverError(&StreamInterruptedError{
			ChannelID: r.cand.ChannelID(),
			Tokens:    completion,
			Err:       failure,
		})
		r.span.RecordError(failure)
		r.span.SetStatus(codes.Error, string(o.Kind))
	default:
		o.Kind = domain.OutcomeSuccess
	}

	tracing.SetUsage(r.span, o)

	r.d.report(r.reqCtx, r.rc, r.cand, r.permit, o)
	r.d.commit(r.reqCtx, r.rc, o)
	r.span.End()
	r.res.finish(o)
}

// tokens returns the completion tokens attributed to c given the tokens
// already relayed. A chunk carrying the upstream's completion total gets
// the remainder, so the per-chunk counts add up to the reported usage.
func (r *relay) tokens(c domain.Chunk, relayed int) int {
	n := r.d.deps.Accountant.CountTokens(r.cand.Mapping.Target, c.Delta)
	if c.Usage != nil && c.Usage.CompletionTokens > 0 {
		if rem := c.Usage.CompletionTokens - relayed; rem >= 0 {
			n = rem
		}
	}
	return n
}

// deliverError sends the terminal error chunk. When the request context
// is already done it is only delivered if the buffer has room.
func (r *relay) deliverError(err error) {
	chunk := domain.Chunk{Err: err}
	if r.reqCtx.Err() != nil {
		select {
		case r.out <- chunk:
		default:
		}
		return
	}
	select {
	case r.out <- chunk:
	case <-r.reqCtx.Done():
	}
}
