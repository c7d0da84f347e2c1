package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/limits/budget"
	"weaver-hq/loom/pkg/limits/enforcement"
	"weaver-hq/loom/pkg/limits/ratelimit"
	"weaver-hq/loom/pkg/limits/storage"
)

const (
	// DefaultLedgerRetention keeps a little more than the monthly window.
	DefaultLedgerRetention = 35 * 24 * time.Hour

	// DefaultCleanupInterval is how often old ledger entries are removed.
	DefaultCleanupInterval = time.Hour
)

// Config configures the Manager.
type Config struct {
	// RateLimits and Budgets hold per-tenant limits. Tenants without an
	// entry use DefaultRateLimit and DefaultBudget.
	RateLimits       map[string]ratelimit.Config
	Budgets          map[string]budget.Config
	DefaultRateLimit ratelimit.Config
	DefaultBudget    budget.Config

	// Enforcement is block (default) or alert.
	Enforcement enforcement.Action

	// Ledger stores committed spend. Defaults to an in-memory ledger.
	Ledger storage.Ledger

	// LedgerRetention is how long ledger entries are kept. It is raised to
	// the monthly window if shorter.
	LedgerRetention time.Duration

	// CleanupInterval is how often the ledger is pruned. Negative disables
	// the background cleanup.
	CleanupInterval time.Duration

	// Metrics is optional.
	Metrics *Metrics

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager implements domain.BudgetGate.
type Manager struct {
	cfg      Config
	enforcer *enforcement.Enforcer
	ledger   storage.Ledger
	metrics  *Metrics
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	tenants map[string]*tenantLimits
	pending map[string]*reservation

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type tenantLimits struct {
	rate   *ratelimit.Limiter
	budget *budget.Tracker
}

type reservation struct {
	tenantID string
	apiKeyID string
	rate     ratelimit.CheckResult
}

var _ domain.BudgetGate = (*Manager)(nil)

// NewManager creates a manager and replays recent ledger entries into the
// budget windows.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Ledger == nil {
		cfg.Ledger = storage.NewMemoryLedger()
	}
	if cfg.LedgerRetention < budget.MonthlyWindow {
		cfg.LedgerRetention = DefaultLedgerRetention
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		cfg:      cfg,
		enforcer: enforcement.NewEnforcer(cfg.Enforcement),
		ledger:   cfg.Ledger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   slog.Default().With("component", "limits"),
		tenants:  make(map[string]*tenantLimits),
		pending:  make(map[string]*reservation),
		done:     make(chan struct{}),
	}

	n, err := m.rehydrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to replay spend ledger: %w", err)
	}
	if n > 0 {
		m.logger.Info("replayed spend ledger", "entries", n)
	}

	if cfg.CleanupInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(cfg.CleanupInterval)
	}
	return m, nil
}

// Reserve implements domain.BudgetGate. Budgets are checked before rate
// limits so a tenant that is out of budget does not consume rate capacity.
func (m *Manager) Reserve(ctx context.Context, rc *domain.RequestContext) (domain.Decision, error) {
	if rc == nil || rc.RequestID == "" {
		return domain.Decision{}, errors.New("limits: request id is required")
	}
	start := time.Now()

	m.mu.Lock()
	if _, dup := m.pending[rc.RequestID]; dup {
		m.mu.Unlock()
		return domain.Decision{}, fmt.Errorf("%w: %s", ErrAlreadyReserved, rc.RequestID)
	}
	r := &reservation{tenantID: rc.TenantID, apiKeyID: rc.APIKeyID}
	m.pending[rc.RequestID] = r
	m.mu.Unlock()

	t := m.tenant(rc.TenantID)
	now := m.now()
	decision := domain.Allow()

	st := t.budget.Check(now)
	switch {
	case !st.Allowed:
		decision = domain.Decision{
			Reason:     domain.DenyBudget,
			Message:    st.Reason,
			RetryAfter: st.Reset.Sub(now),
		}
	default:
		if st.AlertTriggered {
			m.logger.WarnContext(ctx, "tenant budget alert threshold reached",
				"tenant", rc.TenantID, "window", st.Name, "used", st.Used, "limit", st.Limit)
		}
		r.rate = t.rate.Check(now, rc.PromptTokens)
		if !r.rate.Allowed {
			decision = domain.Decision{
				Reason:     domain.DenyRateLimit,
				Message:    r.rate.Reason,
				RetryAfter: r.rate.RetryAfter,
			}
		}
	}

	res := m.enforcer.Enforce(rc.TenantID, decision)
	if res.Breached {
		m.metrics.recordEnforcement(rc.TenantID, string(res.Action))
		if res.Decision.Allowed {
			m.logger.WarnContext(ctx, "limit breached, allowed by alert-only enforcement",
				"request_id", rc.RequestID, "alert", res.AlertMessage)
		}
	}

	if !res.Decision.Allowed {
		m.mu.Lock()
		delete(m.pending, rc.RequestID)
		m.mu.Unlock()

		m.metrics.recordCheck(rc.TenantID, string(res.Decision.Reason), time.Since(start).Seconds())
		m.logger.InfoContext(ctx, "request denied",
			"request_id", rc.RequestID, "tenant", rc.TenantID,
			"reason", res.Decision.Reason, "retry_after", res.Decision.RetryAfter)
		return res.Decision, nil
	}

	m.metrics.recordCheck(rc.TenantID, "allowed", time.Since(start).Seconds())
	m.metrics.recordConcurrent(rc.TenantID, t.rate.InFlight())
	return res.Decision, nil
}

// Commit implements domain.BudgetGate. The first commit for a request ID
// returns the reservation's concurrency slot and charges the outcome's
// cost and tokens to the tenant; later commits are no-ops.
func (m *Manager) Commit(ctx context.Context, requestID string, o domain.Outcome) error {
	m.mu.Lock()
	r, reserved := m.pending[requestID]
	delete(m.pending, requestID)
	m.mu.Unlock()

	var t *tenantLimits
	entry := storage.Entry{
		RequestID:        requestID,
		ChannelID:        o.ChannelID,
		Model:            o.Model,
		Outcome:          string(o.Kind),
		PromptTokens:     o.PromptTokens,
		CompletionTokens: o.CompletionTokens,
		Cost:             o.Cost,
		CommittedAt:      m.now(),
	}
	if reserved {
		t = m.tenant(r.tenantID)
		t.rate.Release(r.rate)
		m.metrics.recordConcurrent(r.tenantID, t.rate.InFlight())
		entry.TenantID = r.tenantID
		entry.APIKeyID = r.apiKeyID
	}

	inserted, err := m.ledger.Append(ctx, entry)
	switch {
	case err != nil:
		m.metrics.recordCommit("error")
		m.logger.ErrorContext(ctx, "failed to append spend ledger entry", "request_id", requestID, "error", err)
	case !inserted:
		m.metrics.recordCommit("duplicate")
		m.logger.DebugContext(ctx, "duplicate commit ignored", "request_id", requestID)
		return nil
	default:
		m.metrics.recordCommit("inserted")
	}

	// Spend is charged even if the ledger write failed.
	if reserved {
		m.charge(r.tenantID, t, entry)
	} else if err == nil {
		m.logger.WarnContext(ctx, "commit without reservation", "request_id", requestID)
	}

	if err != nil {
		return fmt.Errorf("commit %s: %w", requestID, err)
	}
	return nil
}

// Status returns the current state of a tenant's limits.
func (m *Manager) Status(tenantID string) TenantStatus {
	t := m.tenant(tenantID)

	m.mu.Lock()
	pending := 0
	for _, r := range m.pending {
		if r.tenantID == tenantID {
			pending++
		}
	}
	m.mu.Unlock()

	return TenantStatus{
		TenantID: tenantID,
		Budgets:  t.budget.Statuses(m.now()),
		InFlight: t.rate.InFlight(),
		Pending:  pending,
	}
}

// Tenants returns the IDs of tenants with configured or observed limits.
func (m *Manager) Tenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(m.tenants))
	for id := range m.tenants {
		seen[id] = struct{}{}
	}
	for id := range m.cfg.RateLimits {
		seen[id] = struct{}{}
	}
	for id := range m.cfg.Budgets {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Prune removes ledger entries older than the retention period.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	return m.ledger.Cleanup(ctx, m.now().Add(-m.cfg.LedgerRetention))
}

// Close stops the cleanup loop and closes the ledger.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
		err = m.ledger.Close()
	})
	return err
}

func (m *Manager) tenant(id string) *tenantLimits {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tenants[id]; ok {
		return t
	}

	rl, ok := m.cfg.RateLimits[id]
	if !ok {
		rl = m.cfg.DefaultRateLimit
	}
	bc, ok := m.cfg.Budgets[id]
	if !ok {
		bc = m.cfg.DefaultBudget
	}
	t := &tenantLimits{rate: ratelimit.NewLimiter(rl), budget: budget.NewTracker(bc)}
	m.tenants[id] = t
	return t
}

func (m *Manager) charge(tenantID string, t *tenantLimits, e storage.Entry) {
	t.budget.AddAt(e.CommittedAt, e.Cost)
	t.rate.RecordTokens(e.CommittedAt, e.PromptTokens+e.CompletionTokens)

	if m.metrics != nil {
		for _, st := range t.budget.Statuses(e.CommittedAt) {
			m.metrics.recordBudgetUsage(tenantID, st.Name, st.Percentage)
		}
	}
}

func (m *Manager) rehydrate(ctx context.Context) (int, error) {
	now := m.now()
	entries, err := m.ledger.Since(ctx, now.Add(-budget.MonthlyWindow))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.TenantID == "" {
			continue
		}
		t := m.tenant(e.TenantID)
		t.budget.AddAt(e.CommittedAt, e.Cost)
		if now.Sub(e.CommittedAt) < time.Minute {
			t.rate.RecordTokens(e.CommittedAt, e.PromptTokens+e.CompletionTokens)
		}
		n++
	}
	return n, nil
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := m.Prune(context.Background())
			if err != nil {
				m.logger.Error("failed to prune spend ledger", "error", err)
			} else if n > 0 {
				m.logger.Debug("pruned spend ledger", "removed", n)
			}
		case <-m.done:
			return
		}
	}
}
