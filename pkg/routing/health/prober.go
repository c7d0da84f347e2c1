package health

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"weaver-hq/loom/pkg/domain"
)

// Prober sends one lightweight liveness request to a channel's upstream.
type Prober interface {
	Probe(ctx context.Context, ch *domain.Channel) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, ch *domain.Channel) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, ch *domain.Channel) error {
	return f(ctx, ch)
}

// ChannelSource lists every configured channel across all tenants.
type ChannelSource interface {
	Channels(ctx context.Context) ([]domain.Channel, error)
}

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	ChannelID string        `json:"channel_id"`
	Type      string        `json:"type"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// OK reports whether the probe succeeded.
func (r ProbeResult) OK() bool {
	return r.Err == nil
}

// Default probe loop parameters.
const (
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 8
)

// ProbeConfig configures the background probe loop.
type ProbeConfig struct {
	// Interval is the fixed time between probe rounds.
	Interval time.Duration

	// Timeout bounds a single probe.
	Timeout time.Duration

	// Concurrency is the number of probes in flight at once.
	Concurrency int

	// RatePerSecond paces probe starts across a round. Zero means
	// unlimited.
	RatePerSecond float64

	// OnResult, if set, observes every probe result.
	OnResult func(ProbeResult)
}

func (c *ProbeConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultProbeInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultProbeTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultProbeConcurrency
	}
}

// ProbeLoop periodically probes every active channel and feeds the results
// into a Monitor. It is a single long-lived task per channel set,
// independent of request traffic.
type ProbeLoop struct {
	monitor *Monitor
	source  ChannelSource
	prober  Prober
	cfg     ProbeConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	stopped chan struct{}
}

// NewProbeLoop creates a probe loop. It does not start it.
func NewProbeLoop(monitor *Monitor, source ChannelSource, prober Prober, cfg ProbeConfig) *ProbeLoop {
	cfg.applyDefaults()

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &ProbeLoop{
		monitor: monitor,
		source:  source,
		prober:  prober,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Concurrency),
		logger:  slog.Default().With("component", "health.prober"),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the loop in a background goroutine until ctx is cancelled or
// Stop is called. Calling Start more than once has no effect.
func (l *ProbeLoop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	go l.run(ctx)
}

// Stop halts the loop and waits for the current round to finish.
func (l *ProbeLoop) Stop() {
	l.mu.Lock()
	started := l.started
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	l.mu.Unlock()

	if started {
		<-l.stopped
	}
}

func (l *ProbeLoop) run(ctx context.Context) {
	defer close(l.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.logger.Info("probe loop started",
		"interval", l.cfg.Interval,
		"timeout", l.cfg.Timeout,
		"concurrency", l.cfg.Concurrency,
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("probe loop stopped")
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce probes every active channel once, records the results in the
// monitor and returns them sorted by channel ID.
func (l *ProbeLoop) RunOnce(ctx context.Context) []ProbeResult {
	channels, err := l.source.Channels(ctx)
	if err != nil {
		l.logger.Error("failed to list channels for probing", "error", err)
		return nil
	}

	var (
		mu      sync.Mutex
		results []ProbeResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)

	for i := range channels {
		ch := &channels[i]
		if ch.Status != domain.StatusActive {
			continue
		}
		if err := l.limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			res := l.probe(gctx, ch)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b ProbeResult) int {
		return strings.Compare(a.ChannelID, b.ChannelID)
	})
	return results
}

func (l *ProbeLoop) probe(ctx context.Context, ch *domain.Channel) ProbeResult {
	pctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := l.prober.Probe(pctx, ch)
	res := ProbeResult{
		ChannelID: ch.ID,
		Type:      string(ch.Type),
		Err:       err,
		Latency:   time.Since(start),
		CheckedAt: start,
	}

	// A probe cut short by shutdown says nothing about the upstream.
	if err != nil && ctx.Err() != nil {
		return res
	}

	if err != nil {
		res.Error = err.Error()
		l.logger.Warn("channel probe failed",
			"channel", ch.ID,
			"type", ch.Type,
			"latency", res.Latency,
			"error", err,
		)
	} else {
		l.logger.Debug("channel probe passed",
			"channel", ch.ID,
			"latency", res.Latency,
		)
	}

	l.monitor.RecordProbe(ch.ID, err)
	if l.cfg.OnResult != nil {
		l.cfg.OnResult(res)
	}
	return res
}
