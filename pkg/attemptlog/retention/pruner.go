package retention

import (
	"context"
	"log/slog"
	"time"

	"weaver-hq/loom/pkg/attemptlog"
)

// Config configures the pruner.
type Config struct {
	// MaxAge is how long records are kept. Zero keeps them forever.
	MaxAge time.Duration

	// MaxRecords caps the number of records kept. Zero means unlimited.
	MaxRecords int64

	// Schedule is a cron expression. Empty disables scheduled pruning.
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:   7 * 24 * time.Hour,
		Schedule: "0 3 * * *",
	}
}

// Pruner enforces retention on an attempt store.
type Pruner struct {
	store     attemptlog.Store
	config    *Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner.
func NewPruner(store attemptlog.Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "attemptlog.retention"),
		now:    time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes expired records and then trims to MaxRecords. It returns
// the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.MaxAge > 0 {
		n, err := p.pruneByAge(ctx)
		if err != nil {
			return total, &attemptlog.RetentionError{Phase: "age", Cause: err}
		}
		total += n
	}

	if p.config.MaxRecords > 0 {
		n, err := p.pruneByCount(ctx)
		if err != nil {
			return total, &attemptlog.RetentionError{Phase: "count", Cause: err}
		}
		total += n
	}

	if total > 0 {
		p.logger.Info("attempt log pruned",
			"deleted_count", total,
			"max_age", p.config.MaxAge,
			"max_records", p.config.MaxRecords,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	// Until is inclusive; step back one nanosecond so a record exactly
	// MaxAge old survives.
	cutoff := p.now().Add(-p.config.MaxAge).Add(-time.Nanosecond)
	return p.store.Delete(ctx, &attemptlog.Query{Until: &cutoff})
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.store.Count(ctx, &attemptlog.Query{})
	if err != nil {
		return 0, err
	}
	excess := count - p.config.MaxRecords
	if excess <= 0 {
		return 0, nil
	}

	// The newest record among the excess gives the cutoff. Records sharing
	// its timestamp go too, so slightly more than excess may be deleted.
	oldest, err := p.store.Query(ctx, &attemptlog.Query{
		Order:  attemptlog.SortAsc,
		Offset: int(excess - 1),
		Limit:  1,
	})
	if err != nil {
		return 0, err
	}
	if len(oldest) == 0 {
		return 0, nil
	}
	cutoff := oldest[0].Timestamp

	p.logger.Debug("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"cutoff_time", cutoff,
	)
	return p.store.Delete(ctx, &attemptlog.Query{Until: &cutoff})
}

// Start starts scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil when not scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
