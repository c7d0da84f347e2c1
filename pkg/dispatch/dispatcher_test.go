package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	mock "weaver-hq/loom/internal/routing"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
)

const testModel = "gpt-4o"

// fakeBudget records commits per request ID.
type fakeBudget struct {
	mu      sync.Mutex
	commits map[string][]domain.Outcome
}

func (f *fakeBudget) Reserve(context.Context, *domain.RequestContext) (domain.Decision, error) {
	return domain.Allow(), nil
}

func (f *fakeBudget) Commit(_ context.Context, requestID string, o domain.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commits == nil {
		f.commits = make(map[string][]domain.Outcome)
	}
	f.commits[requestID] = append(f.commits[requestID], o)
	return nil
}

func (f *fakeBudget) get(requestID string) []domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[requestID]
}

type fakeObserver struct {
	mu        sync.Mutex
	attempts  []domain.Outcome
	failovers [][2]string
}

func (f *fakeObserver) ObserveAttempt(_ *domain.RequestContext, o domain.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, o)
}

func (f *fakeObserver) ObserveFailover(_ *domain.RequestContext, from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failovers = append(f.failovers, [2]string{from, to})
}

type fixture struct {
	adapter  *mock.MockAdapter
	monitor  *health.Monitor
	stats    *aggregate.Aggregator
	budget   *fakeBudget
	observer *fakeObserver
	chosen   []string
	mu       sync.Mutex
	d        *Dispatcher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		adapter:  mock.NewMockAdapter(),
		monitor:  health.NewMonitor(health.Config{FailureThreshold: 1, BaseCooldown: time.Minute}),
		stats:    aggregate.New(0),
		budget:   &fakeBudget{},
		observer: &fakeObserver{},
	}
	d, err := New(cfg, Deps{
		Adapters: f.adapter,
		Health:   f.monitor,
		Stats:    f.stats,
		Budget:   f.budget,
		Observer: f.observer,
		OnSuccess: func(_ *domain.RequestContext, channelID string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.chosen = append(f.chosen, channelID)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.d = d
	return f
}

func newRequest(id string, stream bool) *domain.RequestContext {
	return &domain.RequestContext{
		RequestID:    id,
		TenantID:     "acme",
		Model:        testModel,
		Stream:       stream,
		PromptTokens: 12,
		Payload: &domain.ChatRequest{
			Model:    testModel,
			Messages: []domain.Message{{Role: "user", Content: "hello"}},
			Stream:   stream,
		},
	}
}

func candidates(n int) []domain.Candidate {
	return mock.Candidates(mock.TestChannels(n, testModel), testModel)
}

func unavailable(id string) error {
	return &providers.ProviderError{Channel: id, StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, Deps{Health: health.NewMonitor(health.Config{})}); err == nil {
		t.Error("New() without adapters should fail")
	}
	if _, err := New(Config{}, Deps{Adapters: mock.NewMockAdapter()}); err == nil {
		t.Error("New() without health should fail")
	}

	d, err := New(Config{}, Deps{Adapters: mock.NewMockAdapter(), Health: health.NewMonitor(health.Config{})})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg := d.Config(); cfg.MaxAttempts != DefaultMaxAttempts || cfg.AttemptTimeout != DefaultAttemptTimeout {
		t.Errorf("Config() = %+v, want defaults", cfg)
	}
}

func TestDispatch_Success(t *testing.T) {
	f := newFixture(t, Config{})
	rc := newRequest("req-1", false)

	res, err := f.d.Dispatch(context.Background(), rc, candidates(2))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.ChannelID != "ch-1" || res.Attempts != 1 || res.Streaming() {
		t.Errorf("result = %+v", res)
	}
	if res.Response.Content != "mock response" {
		t.Errorf("content = %q", res.Response.Content)
	}

	select {
	case <-res.Done():
	default:
		t.Fatal("Done() should be closed for non-streaming results")
	}
	o := res.Outcome()
	if !o.Success() || o.PromptTokens != 10 || o.CompletionTokens != 5 {
		t.Errorf("outcome = %+v", o)
	}

	commits := f.budget.get("req-1")
	if len(commits) != 1 || !commits[0].Success() {
		t.Errorf("commits = %+v, want one success", commits)
	}
	if len(f.chosen) != 1 || f.chosen[0] != "ch-1" {
		t.Errorf("OnSuccess calls = %v", f.chosen)
	}
	if s := f.stats.Percentiles("ch-1", testModel); s.Samples != 1 {
		t.Errorf("stats samples = %d, want 1", s.Samples)
	}
}

func TestDispatch_FailoverBound(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 3})
	cands := candidates(5)
	for _, c := range cands {
		f.adapter.Set(c.ChannelID(), mock.Script{Err: unavailable(c.ChannelID())})
	}

	_, err := f.d.Dispatch(context.Background(), newRequest("req-2", false), cands)

	var allErr *AllAttemptsFailedError
	if !errors.As(err, &allErr) {
		t.Fatalf("error = %v, want AllAttemptsFailedError", err)
	}
	if !errors.Is(err, ErrAllAttemptsFailed) {
		t.Error("error should match ErrAllAttemptsFailed")
	}
	if len(allErr.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(allErr.Attempts))
	}
	if got := len(f.adapter.Calls()); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
	for i, a := range allErr.Attempts {
		if a.StatusCode != http.StatusServiceUnavailable || a.Attempt != i+1 {
			t.Errorf("attempt %d = %+v", i, a)
		}
	}
	if commits := f.budget.get("req-2"); len(commits) != 1 {
		t.Errorf("commits = %d, want exactly 1", len(commits))
	}
	if len(f.observer.failovers) != 2 {
		t.Errorf("failovers = %v, want 2", f.observer.failovers)
	}
	if len(f.chosen) != 0 {
		t.Errorf("OnSuccess should not run, got %v", f.chosen)
	}
}

func TestDispatch_FailoverToNext(t *testing.T) {
	f := newFixture(t, Config{})
	f.adapter.Set("ch-1", mock.Script{Err: &providers.TimeoutError{Channel: "ch-1", Elapsed: time.Second}})

	res, err := f.d.Dispatch(context.Background(), newRequest("req-3", false), candidates(3))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.ChannelID != "ch-2" || res.Attempts != 2 {
		t.Errorf("served by %s after %d attempts", res.ChannelID, res.Attempts)
	}
	if len(f.observer.failovers) != 1 || f.observer.failovers[0] != [2]string{"ch-1", "ch-2"} {
		t.Errorf("failovers = %v", f.observer.failovers)
	}
	if h := f.monitor.Health("ch-1"); h.State != health.Open {
		t.Errorf("ch-1 state = %s, want open after a transient failure at threshold 1", h.State)
	}
}

func TestDispatch_FatalStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "auth", err: &providers.AuthError{Channel: "ch-1", StatusCode: http.StatusUnauthorized, Message: "bad key"}},
		{name: "validation", err: &providers.ValidationError{Field: "messages", Message: "empty"}},
		{name: "unknown model", err: &providers.ModelNotFoundError{Channel: "ch-1", Model: testModel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.adapter.Set("ch-1", mock.Script{Err: tt.err})

			_, err := f.d.Dispatch(context.Background(), newRequest("req-fatal", false), candidates(3))
			if !errors.Is(err, ErrUpstreamFatal) {
				t.Fatalf("error = %v, want ErrUpstreamFatal", err)
			}
			if !errors.Is(err, tt.err) {
				t.Error("error should wrap the adapter error")
			}
			if got := len(f.adapter.Calls()); got != 1 {
				t.Errorf("upstream calls = %d, want 1", got)
			}
			if commits := f.budget.get("req-fatal"); len(commits) != 1 || commits[0].Kind != domain.OutcomeFatal {
				t.Errorf("commits = %+v", commits)
			}
		})
	}
}

func TestDispatch_SkipsUnacquirable(t *testing.T) {
	f := newFixture(t, Config{MaxAttempts: 2})
	f.monitor.RecordOutcome("ch-1", domain.Outcome{Kind: domain.OutcomeTransient})

	res, err := f.d.Dispatch(context.Background(), newRequest("req-4", false), candidates(2))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.ChannelID != "ch-2" || res.Attempts != 1 {
		t.Errorf("served by %s after %d attempts, want ch-2 after 1", res.ChannelID, res.Attempts)
	}
	if f.adapter.CallCount("ch-1") != 0 {
		t.Error("open channel should not be called")
	}
}

func TestDispatch_NothingAcquirable(t *testing.T) {
	f := newFixture(t, Config{})
	f.monitor.RecordOutcome("ch-1", domain.Outcome{Kind: domain.OutcomeTransient})

	_, err := f.d.Dispatch(context.Background(), newRequest("req-5", false), candidates(1))

	var allErr *AllAttemptsFailedError
	if !errors.As(err, &allErr) {
		t.Fatalf("error = %v, want AllAttemptsFailedError", err)
	}
	if len(allErr.Skipped) != 1 || allErr.Skipped[0] != "ch-1" {
		t.Errorf("skipped = %v", allErr.Skipped)
	}
	if !errors.Is(err, routing.ErrNoEligibleChannel) {
		t.Error("a request with no attempts should match ErrNoEligibleChannel")
	}
	if commits := f.budget.get("req-5"); len(commits) != 1 {
		t.Errorf("commits = %d, want 1", len(commits))
	}
}

func TestDispatch_CancellationNotCountedAgainstHealth(t *testing.T) {
	f := newFixture(t, Config{})
	f.adapter.Set("ch-1", mock.Script{Delay: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.d.Dispatch(ctx, newRequest("req-6", false), candidates(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	h := f.monitor.Health("ch-1")
	if h.State != health.Closed || h.ConsecutiveFailures != 0 {
		t.Errorf("ch-1 health = %+v, cancellation must not count", h)
	}
	if f.adapter.CallCount("ch-2") != 0 {
		t.Error("cancelled request should not fail over")
	}
	commits := f.budget.get("req-6")
	if len(commits) != 1 || commits[0].Kind != domain.OutcomeCanceled {
		t.Errorf("commits = %+v, want one canceled", commits)
	}
	if s := f.stats.Percentiles("ch-1", testModel); s.Samples != 0 {
		t.Errorf("canceled attempts should not enter statistics, got %d samples", s.Samples)
	}
}

func TestDispatch_Deadline(t *testing.T) {
	f := newFixture(t, Config{})
	for _, c := range candidates(3) {
		f.adapter.Set(c.ChannelID(), mock.Script{Delay: 5 * time.Second})
	}

	rc := newRequest("req-7", false)
	rc.Deadline = time.Now().Add(50 * time.Millisecond)

	start := time.Now()
	_, err := f.d.Dispatch(context.Background(), rc, candidates(3))
	if !errors.Is(err, ErrDeadlineExceeded) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("dispatch took %s, deadline not honored", elapsed)
	}
	if got := len(f.adapter.Calls()); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if commits := f.budget.get("req-7"); len(commits) != 1 {
		t.Errorf("commits = %d, want 1", len(commits))
	}
}

func TestDispatch_AttemptTimeout(t *testing.T) {
	f := newFixture(t, Config{AttemptTimeout: 30 * time.Millisecond})
	f.adapter.Set("ch-1", mock.Script{Delay: 5 * time.Second})

	res, err := f.d.Dispatch(context.Background(), newRequest("req-8", false), candidates(2))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if res.ChannelID != "ch-2" {
		t.Errorf("served by %s, want ch-2 after timeout", res.ChannelID)
	}
	if h := f.monitor.Health("ch-1"); h.State != health.Open {
		t.Errorf("ch-1 state = %s, a timeout counts as a failure", h.State)
	}
}

func TestDispatch_EstimatesMissingUsage(t *testing.T) {
	f := newFixture(t, Config{})
	f.adapter.Set("ch-1", mock.Script{Response: &domain.Response{Content: "abcdefghi"}})

	rc := newRequest("req-9", false)
	res, err := f.d.Dispatch(context.Background(), rc, candidates(1))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	o := res.Outcome()
	if o.PromptTokens != rc.PromptTokens {
		t.Errorf("prompt tokens = %d, want estimate %d", o.PromptTokens, rc.PromptTokens)
	}
	if o.CompletionTokens != 4 {
		t.Errorf("completion tokens = %d, want 9/3+1", o.CompletionTokens)
	}
}
