package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"weaver-hq/loom/pkg/attemptlog"
	"weaver-hq/loom/pkg/domain"
)

// Config configures a Recorder.
type Config struct {
	// Enabled turns recording on. A disabled recorder discards everything.
	Enabled bool

	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxErrorLength truncates stored error messages.
	// Default: 500
	MaxErrorLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		AsyncBuffer:    1000,
		WriteTimeout:   5 * time.Second,
		MaxErrorLength: 500,
	}
}

// Stats reports recorder counters.
type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Written  uint64 `json:"written"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

// Recorder implements domain.AttemptLogger on top of an attemptlog.Store.
type Recorder struct {
	store   attemptlog.Store
	config  *Config
	records chan *attemptlog.Record
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	now     func() time.Time

	closeOnce sync.Once
	closed    atomic.Bool

	enqueued atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

var _ domain.AttemptLogger = (*Recorder)(nil)

// NewRecorder creates a recorder and starts its writer.
func NewRecorder(store attemptlog.Store, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.MaxErrorLength <= 0 {
		config.MaxErrorLength = 500
	}

	r := &Recorder{
		store:   store,
		config:  config,
		records: make(chan *attemptlog.Record, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "attemptlog.recorder"),
		now:     time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("attempt recorder initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// RecordAttempt implements domain.AttemptLogger. It returns immediately.
func (r *Recorder) RecordAttempt(_ context.Context, requestID, channelID string, o domain.Outcome) {
	if !r.config.Enabled || r.closed.Load() {
		return
	}

	rec := attemptlog.FromOutcome(requestID, channelID, o)
	rec.ID = uuid.NewString()
	rec.RecordedAt = r.now()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = rec.RecordedAt
	}
	rec.Error = TruncateString(rec.Error, r.config.MaxErrorLength)

	select {
	case r.records <- rec:
		r.enqueued.Add(1)
	default:
		r.dropped.Add(1)
		r.logger.Warn("attempt queue full, dropping record",
			"request_id", requestID,
			"channel", rec.ChannelID,
			"capacity", r.config.AsyncBuffer,
		)
	}
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Enqueued: r.enqueued.Load(),
		Written:  r.written.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

// Close stops accepting records, writes everything still queued and
// returns. It does not close the store.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
		r.logger.Info("attempt recorder shut down", "written", r.written.Load(), "dropped", r.dropped.Load())
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.records:
			r.write(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.records:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec *attemptlog.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.store.Store(ctx, rec); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to store attempt record",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"error", err,
		)
		return
	}
	r.written.Add(1)

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow attempt write",
			"record_id", rec.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
