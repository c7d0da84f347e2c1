package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing/health"
)

func newTestCollector(t *testing.T, limit int) *Collector {
	t.Helper()
	cfg := &config.MetricsConfig{Enabled: true, CardinalityLimit: limit}
	return NewCollector(cfg, prometheus.NewRegistry())
}

func TestNewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if c.Registry() == nil {
		t.Fatal("nil registry should be replaced")
	}
	if cfg.Namespace != "loom" {
		t.Errorf("namespace = %q", cfg.Namespace)
	}
	if cfg.CardinalityLimit != config.DefaultCardinalityLimit {
		t.Errorf("cardinality limit = %d", cfg.CardinalityLimit)
	}
}

func TestCollector_ObserveRoute(t *testing.T) {
	c := newTestCollector(t, 100)
	rc := &domain.RequestContext{TenantID: "acme", Model: "gpt-4o"}

	c.ObserveRoute(rc, "success", 250*time.Millisecond)
	c.ObserveRoute(rc, "success", time.Second)
	c.ObserveRoute(rc, "no_eligible_channel", time.Millisecond)

	if got := testutil.ToFloat64(c.route.requests.WithLabelValues("acme", "gpt-4o", "success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.route.requests.WithLabelValues("acme", "gpt-4o", "no_eligible_channel")); got != 1 {
		t.Errorf("no_eligible_channel count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.route.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCollector_ObserveDenial(t *testing.T) {
	c := newTestCollector(t, 100)
	rc := &domain.RequestContext{TenantID: "acme"}

	c.ObserveDenial(rc, domain.DenyBudget)
	c.ObserveDenial(rc, domain.DenyRateLimit)
	c.ObserveDenial(rc, domain.DenyRateLimit)

	if got := testutil.ToFloat64(c.route.denials.WithLabelValues("acme", string(domain.DenyRateLimit))); got != 2 {
		t.Errorf("rate limit denials = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.route.denials.WithLabelValues("acme", string(domain.DenyBudget))); got != 1 {
		t.Errorf("budget denials = %v, want 1", got)
	}
}

func TestCollector_ObserveAttempt(t *testing.T) {
	c := newTestCollector(t, 100)
	rc := &domain.RequestContext{TenantID: "acme"}

	c.ObserveAttempt(rc, domain.Outcome{
		Kind:             domain.OutcomeSuccess,
		ChannelID:        "ch-1",
		Model:            "gpt-4o",
		Latency:          300 * time.Millisecond,
		PromptTokens:     100,
		CompletionTokens: 40,
		Cost:             0.0022,
	})
	c.ObserveAttempt(rc, domain.Outcome{
		Kind:      domain.OutcomeTransient,
		ChannelID: "ch-1",
		Model:     "gpt-4o",
		Latency:   50 * time.Millisecond,
	})

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"success attempts", c.channel.attempts.WithLabelValues("ch-1", "gpt-4o", "success"), 1},
		{"transient attempts", c.channel.attempts.WithLabelValues("ch-1", "gpt-4o", "transient"), 1},
		{"prompt tokens", c.cost.tokens.WithLabelValues("ch-1", TokenKindPrompt), 100},
		{"completion tokens", c.cost.tokens.WithLabelValues("ch-1", TokenKindCompletion), 40},
		{"cost", c.cost.cost.WithLabelValues("ch-1"), 0.0022},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_ObserveFailover(t *testing.T) {
	c := newTestCollector(t, 100)
	c.ObserveFailover(&domain.RequestContext{}, "ch-1", "ch-2")

	if got := testutil.ToFloat64(c.channel.failovers.WithLabelValues("ch-1", "ch-2")); got != 1 {
		t.Errorf("failovers = %v, want 1", got)
	}
}

func TestCollector_ObserveBreaker(t *testing.T) {
	c := newTestCollector(t, 100)

	c.ObserveBreaker("ch-1", health.Closed, health.Open)
	if got := testutil.ToFloat64(c.channel.breakerState.WithLabelValues("ch-1")); got != 1 {
		t.Errorf("state after open = %v, want 1", got)
	}

	c.ObserveBreaker("ch-1", health.Open, health.HalfOpen)
	if got := testutil.ToFloat64(c.channel.breakerState.WithLabelValues("ch-1")); got != 2 {
		t.Errorf("state after half open = %v, want 2", got)
	}

	c.ObserveBreaker("ch-1", health.HalfOpen, health.Closed)
	if got := testutil.ToFloat64(c.channel.breakerState.WithLabelValues("ch-1")); got != 0 {
		t.Errorf("state after close = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.channel.transitions.WithLabelValues("ch-1", "open")); got != 1 {
		t.Errorf("open transitions = %v, want 1", got)
	}
}

func TestCollector_ObserveProbe(t *testing.T) {
	c := newTestCollector(t, 100)

	c.ObserveProbe(health.ProbeResult{ChannelID: "ch-1", Latency: 20 * time.Millisecond})
	c.ObserveProbe(health.ProbeResult{ChannelID: "ch-1", Err: errors.New("refused")})

	if got := testutil.ToFloat64(c.channel.probes.WithLabelValues("ch-1", "ok")); got != 1 {
		t.Errorf("ok probes = %v", got)
	}
	if got := testutil.ToFloat64(c.channel.probes.WithLabelValues("ch-1", "error")); got != 1 {
		t.Errorf("error probes = %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: false}
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.ObserveRoute(&domain.RequestContext{TenantID: "acme"}, "success", time.Second)
	c.ObserveAttempt(nil, domain.Outcome{ChannelID: "ch-1", Kind: domain.OutcomeSuccess})
	c.ObserveBreaker("ch-1", health.Closed, health.Open)

	if n := testutil.CollectAndCount(c.route.requests); n != 0 {
		t.Errorf("disabled collector recorded %d route series", n)
	}
	if n := testutil.CollectAndCount(c.channel.attempts); n != 0 {
		t.Errorf("disabled collector recorded %d attempt series", n)
	}
}

func TestCollector_CardinalityLimit(t *testing.T) {
	c := newTestCollector(t, 3)
	rc := &domain.RequestContext{}

	for i := 0; i < 5; i++ {
		c.ObserveAttempt(rc, domain.Outcome{
			Kind:      domain.OutcomeSuccess,
			ChannelID: fmt.Sprintf("ch-%d", i),
			Model:     "m",
		})
	}

	if got := testutil.ToFloat64(c.channel.attempts.WithLabelValues(OverflowLabel, OverflowLabel, "success")); got != 2 {
		t.Errorf("overflow attempts = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(c.channel.attempts); n != 4 {
		t.Errorf("attempt series = %d, want 3 channels plus overflow", n)
	}

	// Forgetting a channel frees its slot.
	c.ForgetChannel("ch-0")
	c.ObserveAttempt(rc, domain.Outcome{Kind: domain.OutcomeSuccess, ChannelID: "ch-9", Model: "m"})
	if got := testutil.ToFloat64(c.channel.attempts.WithLabelValues("ch-9", "m", "success")); got != 1 {
		t.Errorf("ch-9 attempts = %v, want 1 after a slot was freed", got)
	}
}

func TestCollector_ForgetChannel(t *testing.T) {
	c := newTestCollector(t, 100)
	c.ObserveAttempt(nil, domain.Outcome{Kind: domain.OutcomeSuccess, ChannelID: "ch-1", Model: "m", Cost: 1, PromptTokens: 1})
	c.ObserveAttempt(nil, domain.Outcome{Kind: domain.OutcomeSuccess, ChannelID: "ch-2", Model: "m"})
	c.ObserveFailover(nil, "ch-1", "ch-2")
	c.ObserveBreaker("ch-1", health.Closed, health.Open)

	c.ForgetChannel("ch-1")

	if n := testutil.CollectAndCount(c.channel.attempts); n != 1 {
		t.Errorf("attempt series = %d, want only ch-2", n)
	}
	for name, coll := range map[string]prometheus.Collector{
		"failovers": c.channel.failovers,
		"breaker":   c.channel.breakerState,
		"cost":      c.cost.cost,
		"tokens":    c.cost.tokens,
	} {
		if n := testutil.CollectAndCount(coll); n != 0 {
			t.Errorf("%s series = %d, want 0", name, n)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t, 100)
	c.ObserveRoute(&domain.RequestContext{TenantID: "acme", Model: "gpt-4o"}, "success", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`loom_route_requests_total{model="gpt-4o",result="success",tenant="acme"} 1`,
		"loom_route_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("first two label sets should be allowed")
	}
	if cl.Allow("c") {
		t.Error("third label set should be rejected")
	}
	if !cl.Allow("a") {
		t.Error("known label set should stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("Count() = %d", cl.Count())
	}
}

func TestCardinalityLimiter_Concurrent(t *testing.T) {
	cl := NewCardinalityLimiter(50)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cl.Allow(fmt.Sprintf("set-%d", i))
		}(i)
	}
	wg.Wait()

	if cl.Count() != 50 {
		t.Errorf("Count() = %d, want 50", cl.Count())
	}
}
