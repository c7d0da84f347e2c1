package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/attemptlog"
	"weaver-hq/loom/pkg/attemptlog/recorder"
	"weaver-hq/loom/pkg/attemptlog/retention"
	attemptstorage "weaver-hq/loom/pkg/attemptlog/storage"
	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/gateway"
	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/limits/budget"
	"weaver-hq/loom/pkg/limits/enforcement"
	"weaver-hq/loom/pkg/limits/ratelimit"
	ledgerstorage "weaver-hq/loom/pkg/limits/storage"
	"weaver-hq/loom/pkg/processing"
	"weaver-hq/loom/pkg/processing/costs"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/routing/strategies"
	"weaver-hq/loom/pkg/security/secrets"
)

// Secrets builds the resolver for ${secret:name} references in channel API
// keys. The secrets directory, when set, is consulted before the
// environment.
func Secrets(cfg *config.SecretsConfig) (*secrets.Manager, error) {
	var chain []secrets.Provider
	if cfg.Dir != "" {
		dir, err := secrets.NewDirProvider(cfg.Dir, cfg.Watch)
		if err != nil {
			return nil, err
		}
		chain = append(chain, dir)
	}
	chain = append(chain, secrets.NewEnvProvider(cfg.EnvPrefix))
	return secrets.NewManager(chain, secrets.CacheConfig{TTL: cfg.CacheTTL}), nil
}

// ProviderConfig converts the shared adapter settings.
func ProviderConfig(cfg *config.ProvidersConfig) providers.ClientConfig {
	return providers.ClientConfig{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DialTimeout:           cfg.DialTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}
}

// Accountant builds the token estimator and price table, applying the
// configured per-provider-type price overrides.
func Accountant(cfg *config.ProvidersConfig) *processing.Processor {
	var overrides map[domain.ProviderType]domain.Price
	if len(cfg.Prices) > 0 {
		overrides = make(map[domain.ProviderType]domain.Price, len(cfg.Prices))
		for kind, p := range cfg.Prices {
			overrides[domain.ProviderType(kind)] = domain.Price{Input: p.Input, Output: p.Output}
		}
	}
	return processing.NewProcessor(nil, costs.NewCalculator(overrides))
}

// BreakerConfig converts the circuit breaker settings. onTransition may be
// nil.
func BreakerConfig(cfg *config.HealthConfig, onTransition func(string, health.State, health.State)) health.Config {
	return health.Config{
		FailureThreshold: cfg.FailureThreshold,
		FailureWindow:    cfg.FailureWindow,
		BaseCooldown:     cfg.BaseCooldown,
		MaxCooldown:      cfg.MaxCooldown,
		OnTransition:     onTransition,
	}
}

// ProbeConfig converts the probe loop settings.
func ProbeConfig(cfg *config.ProbeConfig) health.ProbeConfig {
	return health.ProbeConfig{
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		Concurrency:   cfg.Concurrency,
		RatePerSecond: cfg.RatePerSecond,
	}
}

// GatewayConfig converts the routing section.
func GatewayConfig(cfg *config.Config) (gateway.Config, error) {
	kind, err := strategies.Parse(cfg.Routing.Strategy)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("routing.strategy: %w", err)
	}
	return gateway.Config{
		Routing: routing.Config{
			Strategy:     kind,
			ErrorPenalty: cfg.Routing.ErrorPenalty,
			Affinity: routing.AffinityConfig{
				Enabled: cfg.Routing.Affinity.Enabled || anyTenantAffinity(cfg),
				TTL:     cfg.Routing.Affinity.TTL,
				Size:    cfg.Routing.Affinity.Size,
			},
			Manual: strategies.Manual{AllowFallback: !cfg.Routing.Pinning.Strict},
		},
		Dispatch: dispatch.Config{
			MaxAttempts:    cfg.Routing.MaxAttempts,
			AttemptTimeout: cfg.Routing.AttemptTimeout,
		},
		Probe:          ProbeConfig(&cfg.Health.Probe),
		RequestTimeout: cfg.Server.RequestTimeout,
		MetricsWindow:  cfg.MetricsWindow,
	}, nil
}

// anyTenantAffinity reports whether some tenant opts into affinity while
// it is off globally. The selector needs its cache then; requests of
// other tenants carry no affinity key and skip it.
func anyTenantAffinity(cfg *config.Config) bool {
	for i := range cfg.Tenants {
		if cfg.Tenants[i].AffinityEnabled(false) {
			return true
		}
	}
	return false
}

// newStats sizes the rolling statistics window.
func newStats(cfg *config.Config) *aggregate.Aggregator {
	return aggregate.New(cfg.MetricsWindow)
}

// newLimits builds the budget gate with its ledger. The ledger is owned by
// the returned manager.
func newLimits(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*limits.Manager, error) {
	action, err := enforcement.ParseAction(cfg.Limits.Enforcement)
	if err != nil {
		return nil, fmt.Errorf("limits.enforcement: %w", err)
	}

	var ledger ledgerstorage.Ledger
	switch cfg.Limits.Ledger.Backend {
	case "sqlite":
		if err := ensureDir(cfg.Limits.Ledger.Path); err != nil {
			return nil, err
		}
		ledger, err = ledgerstorage.NewSQLiteLedgerWithConfig(ledgerstorage.SQLiteConfig{
			Path: cfg.Limits.Ledger.Path,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open spend ledger: %w", err)
		}
	default:
		ledger = ledgerstorage.NewMemoryLedger()
	}

	lc := limits.Config{
		RateLimits:       make(map[string]ratelimit.Config),
		Budgets:          make(map[string]budget.Config),
		DefaultRateLimit: rateLimit(&cfg.Limits.DefaultRateLimit),
		DefaultBudget:    budgetLimit(&cfg.Limits.DefaultBudget),
		Enforcement:      action,
		Ledger:           ledger,
		LedgerRetention:  cfg.Limits.Ledger.Retention,
		CleanupInterval:  cfg.Limits.Ledger.CleanupInterval,
		Metrics:          limits.NewMetrics(reg),
	}
	for _, t := range cfg.Tenants {
		if t.RateLimit != nil {
			lc.RateLimits[t.ID] = rateLimit(t.RateLimit)
		}
		if t.Budget != nil {
			lc.Budgets[t.ID] = budgetLimit(t.Budget)
		}
	}

	m, err := limits.NewManager(ctx, lc)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	return m, nil
}

func rateLimit(c *config.RateLimitConfig) ratelimit.Config {
	return ratelimit.Config{
		RequestsPerMinute: c.RequestsPerMinute,
		Burst:             c.Burst,
		TokensPerMinute:   c.TokensPerMinute,
		MaxConcurrent:     c.MaxConcurrent,
	}
}

func budgetLimit(c *config.BudgetConfig) budget.Config {
	return budget.Config{
		Hourly:         c.Hourly,
		Daily:          c.Daily,
		Monthly:        c.Monthly,
		AlertThreshold: c.AlertThreshold,
	}
}

// attemptLog bundles the attempt log pieces started with the server.
type attemptLog struct {
	store    attemptlog.Store
	recorder *recorder.Recorder
	pruner   *retention.Pruner
}

// newAttemptLog opens the attempt store. It returns nil when the attempt
// log is disabled.
func newAttemptLog(cfg *config.AttemptLogConfig) (*attemptLog, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var store attemptlog.Store
	switch cfg.Backend {
	case "memory":
		store = attemptstorage.NewMemoryStore()
	default:
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		s, err := attemptstorage.NewSQLiteStore(&attemptstorage.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open attempt log: %w", err)
		}
		store = s
	}

	return &attemptLog{
		store: store,
		recorder: recorder.NewRecorder(store, &recorder.Config{
			Enabled:        true,
			AsyncBuffer:    cfg.AsyncBuffer,
			WriteTimeout:   cfg.WriteTimeout,
			MaxErrorLength: cfg.MaxErrorLength,
		}),
		pruner: retention.NewPruner(store, &retention.Config{
			MaxAge:     cfg.Retention.MaxAge,
			MaxRecords: cfg.Retention.MaxRecords,
			Schedule:   cfg.Retention.Schedule,
		}),
	}, nil
}

// Close flushes the recorder and closes the store.
func (a *attemptLog) Close() error {
	a.pruner.Stop()
	if err := a.recorder.Close(); err != nil {
		return err
	}
	return a.store.Close()
}

// ensureDir creates the parent directory of a database file.
func ensureDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") || strings.HasPrefix(path, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", path, err)
	}
	return nil
}
