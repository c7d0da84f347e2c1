package dispatch

import (
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/routing/health"
)

// Default dispatcher parameters.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 60 * time.Second
)

// Config configures a Dispatcher.
type Config struct {
	// MaxAttempts bounds the attempts per request. It is never more than
	// the number of candidates.
	MaxAttempts int

	// AttemptTimeout bounds one attempt. For streams it bounds the wait
	// for the first chunk; after that the request deadline governs.
	AttemptTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

// AdapterSource resolves the adapter serving a channel.
type AdapterSource interface {
	For(ch *domain.Channel) (providers.Adapter, error)
}

// HealthTracker is the circuit breaker view the dispatcher needs.
type HealthTracker interface {
	Acquire(channelID string) (health.Permit, bool)
	Release(p health.Permit)
	Done(p health.Permit, o domain.Outcome)
}

// StatsRecorder receives every attempt for rolling statistics.
type StatsRecorder interface {
	Record(channelID, model string, o domain.Outcome)
}

// Accountant estimates tokens and prices attempts.
type Accountant interface {
	CountTokens(model, text string) int
	Cost(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) float64
}

// Observer receives dispatch events for metrics.
type Observer interface {
	ObserveAttempt(rc *domain.RequestContext, o domain.Outcome)
	ObserveFailover(rc *domain.RequestContext, from, to string)
}

// Deps are the collaborators of a Dispatcher. Adapters and Health are
// required; the rest are optional.
type Deps struct {
	Adapters   AdapterSource
	Health     HealthTracker
	Stats      StatsRecorder
	Accountant Accountant
	Budget     domain.BudgetGate
	Attempts   domain.AttemptLogger
	Observer   Observer

	// OnSuccess is called once when a request succeeded, with the channel
	// that served it.
	OnSuccess func(rc *domain.RequestContext, channelID string)
}

// Result is a successful dispatch. Exactly one of Response and Stream is
// set.
type Result struct {
	// Response is the complete response of a non-streaming request.
	Response *domain.Response

	// Stream relays chunks of a streaming request. It is closed when the
	// stream ends. A failure after the first chunk arrives as a final chunk
	// whose Err matches ErrStreamInterrupted.
	Stream <-chan domain.Chunk

	// ChannelID is the channel that served the request.
	ChannelID string

	// Model is the provider-side model.
	Model string

	// Attempts is the number of attempts made, including the successful
	// one.
	Attempts int

	mu    sync.Mutex
	final domain.Outcome
	done  chan struct{}
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Streaming reports whether the result is a stream.
func (r *Result) Streaming() bool {
	return r.Stream != nil
}

// Done is closed once the final outcome is known: immediately for
// non-streaming results, when the relay ends for streams.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the final outcome of the request. For streams it is
// complete only after Done is closed.
func (r *Result) Outcome() domain.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

func (r *Result) finish(o domain.Outcome) {
	r.mu.Lock()
	r.final = o
	r.mu.Unlock()
	close(r.done)
}
