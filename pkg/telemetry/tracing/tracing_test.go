package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/domain"
)

const testTraceParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	cfg := &config.TracingConfig{Enabled: true, ServiceName: "loom-test", Sampler: SamplerAlways}
	tr, err := newWithExporter(cfg, "test", exp)
	if err != nil {
		t.Fatalf("newWithExporter() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "disabled", cfg: &config.TracingConfig{Enabled: false}},
		{
			name: "otlp with ratio sampler",
			cfg: &config.TracingConfig{
				Enabled:       true,
				Endpoint:      "localhost:4317",
				Insecure:      true,
				Headers:       map[string]string{"x-tenant": "ops"},
				ServiceName:   "loom",
				Sampler:       SamplerRatio,
				SampleRatio:   0.5,
				ExportTimeout: time.Second,
			},
			wantEnabled: true,
		},
		{
			name: "bad sampler",
			cfg: &config.TracingConfig{
				Enabled:  true,
				Endpoint: "localhost:4317",
				Insecure: true,
				Sampler:  "sometimes",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := New(tt.cfg, "1.2.3")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tr.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tr.Enabled(), tt.wantEnabled)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = tr.Shutdown(ctx)
		})
	}
}

func TestTracer_DisabledIsNoop(t *testing.T) {
	tr, err := New(&config.TracingConfig{}, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx, span := tr.Start(context.Background(), "noop")
	defer span.End()

	if span.IsRecording() {
		t.Error("disabled tracer returned a recording span")
	}
	if TraceID(ctx) != "" || SpanID(ctx) != "" {
		t.Error("noop span should not carry ids")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestTracer_ExportsSpans(t *testing.T) {
	tr, exp := newTestTracer(t)

	rc := &domain.RequestContext{RequestID: "req-1", TenantID: "acme", Model: "gpt-4o", Stream: true}
	ctx, root := tr.Start(context.Background(), "gateway.route", trace.WithAttributes(RequestAttributes(rc)...))
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Fatal("recording span should carry ids")
	}

	// Spans started through the global provider join the same trace.
	_, child := otel.Tracer("child").Start(ctx, "dispatch.attempt")
	SetUsage(child, domain.Outcome{Kind: domain.OutcomeSuccess, PromptTokens: 12, CompletionTokens: 3, Cost: 0.01})
	child.End()
	SetError(root, errors.New("upstream failed"))
	root.End()

	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	route, attempt := byName["gateway.route"], byName["dispatch.attempt"]
	if attempt.Parent.SpanID() != route.SpanContext.SpanID() {
		t.Error("attempt span is not a child of the route span")
	}
	if route.Status.Code != codes.Error {
		t.Errorf("route status = %v, want Error", route.Status.Code)
	}
	if !hasAttr(route.Attributes, AttrTenant.String("acme")) || !hasAttr(route.Attributes, AttrStream.Bool(true)) {
		t.Errorf("route attributes = %v", route.Attributes)
	}
	if !hasAttr(attempt.Attributes, AttrCompletionTokens.Int(3)) || !hasAttr(attempt.Attributes, AttrOutcome.String("success")) {
		t.Errorf("attempt attributes = %v", attempt.Attributes)
	}
	if v, ok := route.Resource.Set().Value("service.name"); !ok || v.AsString() != "loom-test" {
		t.Errorf("service.name = %v", v)
	}
}

func TestCandidateAttributes(t *testing.T) {
	ch := &domain.Channel{ID: "ch-1", Type: domain.ProviderAnthropic}
	attrs := CandidateAttributes(domain.Candidate{Channel: ch, Mapping: domain.ModelMapping{Model: "claude", Target: "claude-3-5-sonnet"}}, 2)

	for _, want := range []attribute.KeyValue{
		AttrChannel.String("ch-1"),
		AttrProvider.String("anthropic"),
		AttrMappedModel.String("claude-3-5-sonnet"),
		AttrAttempt.Int(2),
	} {
		if !hasAttr(attrs, want) {
			t.Errorf("missing %v", want)
		}
	}
}

func TestCreateSampler(t *testing.T) {
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0x01},
		Name:          "span",
	}

	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
		want     sdktrace.SamplingDecision
	}{
		{name: "always", strategy: SamplerAlways, want: sdktrace.RecordAndSample},
		{name: "never", strategy: SamplerNever, want: sdktrace.Drop},
		{name: "ratio one", strategy: SamplerRatio, ratio: 1, want: sdktrace.RecordAndSample},
		{name: "ratio zero", strategy: SamplerRatio, ratio: 0, want: sdktrace.Drop},
		{name: "ratio above one", strategy: SamplerRatio, ratio: 1.5, wantErr: true},
		{name: "ratio negative", strategy: SamplerRatio, ratio: -0.1, wantErr: true},
		{name: "unknown", strategy: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := createSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("createSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := sampler.ShouldSample(params).Decision; got != tt.want {
				t.Errorf("decision = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateSampler_RespectsSampledParent(t *testing.T) {
	sampler, err := createSampler(SamplerNever, 0)
	if err != nil {
		t.Fatal(err)
	}
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	got := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithRemoteSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "span",
	})
	if got.Decision != sdktrace.RecordAndSample {
		t.Errorf("decision = %v, want RecordAndSample for a sampled parent", got.Decision)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var seen string
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	}))

	t.Run("with traceparent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
		req.Header.Set("traceparent", testTraceParent)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if seen != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("handler trace id = %q", seen)
		}
		if got := rec.Header().Get(TraceIDHeader); got != seen {
			t.Errorf("%s = %q", TraceIDHeader, got)
		}
	})

	t.Run("without traceparent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen != "" {
			t.Errorf("handler trace id = %q, want empty", seen)
		}
		if rec.Header().Get(TraceIDHeader) != "" {
			t.Error("trace id header set without a trace")
		}
	})
}

func TestInjectExtract(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	in := http.Header{}
	in.Set("traceparent", testTraceParent)
	ctx := Extract(context.Background(), in)

	out := http.Header{}
	Inject(ctx, out)
	if got := out.Get("traceparent"); got != testTraceParent {
		t.Errorf("traceparent = %q, want %q", got, testTraceParent)
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, a := range attrs {
		if a.Key == want.Key && a.Value == want.Value {
			return true
		}
	}
	return false
}
