package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	testhelpers "weaver-hq/loom/internal/providers"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

func newTestAdapter(t *testing.T, kind domain.ProviderType) *Adapter {
	t.Helper()
	client := providers.NewHTTPClient(providers.ClientConfig{})
	t.Cleanup(client.Close)
	a, err := New(client, kind)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestNew_RejectsForeignType(t *testing.T) {
	if _, err := New(providers.NewHTTPClient(providers.ClientConfig{}), domain.ProviderAnthropic); err == nil {
		t.Fatal("New(anthropic) should fail")
	}
}

func TestAdapter_Complete(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/v1/chat/completions", testhelpers.MockResponse{
		StatusCode: 200,
		Body:       testhelpers.MockOpenAIResponse("Hello, world!", "gpt-4o-2024"),
	})

	a := newTestAdapter(t, domain.ProviderOpenAI)
	ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL()+"/v1")
	mapping := domain.ModelMapping{Model: "gpt-4o", Target: "gpt-4o-2024", Override: map[string]any{"temperature": 0.1}}

	resp, err := a.Complete(context.Background(), ch, mapping, testhelpers.TestChatRequest("gpt-4o"))
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Content != "Hello, world!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 30 || resp.Usage.CompletionTokens != 20 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}

	req := mock.LastRequest()
	if err := testhelpers.ExpectHeader(req, "Authorization", "Bearer test-key"); err != nil {
		t.Error(err)
	}
	body := req.JSON()
	if body["model"] != "gpt-4o-2024" {
		t.Errorf("upstream model = %v, want mapped target", body["model"])
	}
	if body["temperature"] != 0.1 {
		t.Errorf("temperature = %v, want mapping override 0.1", body["temperature"])
	}
	if _, ok := body["stream"]; ok {
		t.Error("non-streaming request must not set stream")
	}
}

func TestAdapter_CompleteAzure(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/openai/deployments/prod-gpt4/chat/completions", testhelpers.MockResponse{
		Body: testhelpers.MockOpenAIResponse("hi", "gpt-4"),
	})

	a := newTestAdapter(t, domain.ProviderAzure)
	ch := testhelpers.TestChannel("az", domain.ProviderAzure, mock.URL())
	ch.Config = map[string]string{ConfigAPIVersion: "2024-06-01", "header.X-Trace": "abc"}

	if _, err := a.Complete(context.Background(), ch, testhelpers.TestMapping("gpt-4", "prod-gpt4"), testhelpers.TestChatRequest("gpt-4")); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	req := mock.LastRequest()
	if req.Query != "api-version=2024-06-01" {
		t.Errorf("query = %q", req.Query)
	}
	if err := testhelpers.ExpectHeader(req, "api-key", "test-key"); err != nil {
		t.Error(err)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("azure must not send a Bearer token")
	}
	if err := testhelpers.ExpectHeader(req, "X-Trace", "abc"); err != nil {
		t.Error(err)
	}
}

func TestAdapter_CompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		response   testhelpers.MockResponse
		path       string
		wantKind   domain.OutcomeKind
		wantStatus int
		check      func(error) bool
	}{
		{
			name:       "auth",
			response:   testhelpers.MockAuthError(),
			wantKind:   domain.OutcomeFatal,
			wantStatus: 401,
			check:      func(err error) bool { var e *providers.AuthError; return errors.As(err, &e) },
		},
		{
			name:       "rate limit",
			response:   testhelpers.MockRateLimitError(7),
			wantKind:   domain.OutcomeTransient,
			wantStatus: 429,
			check: func(err error) bool {
				var e *providers.RateLimitError
				return errors.As(err, &e) && e.RetryAfter == 7*time.Second
			},
		},
		{
			name:       "server error",
			response:   testhelpers.MockServerError(),
			wantKind:   domain.OutcomeTransient,
			wantStatus: 500,
		},
		{
			name:       "bad request",
			response:   testhelpers.MockErrorResponse(400, "unsupported parameter: logprobs"),
			wantKind:   domain.OutcomeFatal,
			wantStatus: 400,
			check:      func(err error) bool { return strings.Contains(err.Error(), "unsupported parameter") },
		},
		{
			name:       "model not found",
			path:       "/elsewhere",
			wantKind:   domain.OutcomeFatal,
			wantStatus: 404,
			check:      func(err error) bool { var e *providers.ModelNotFoundError; return errors.As(err, &e) && e.Model == "gpt-4" },
		},
		{
			name:       "malformed body",
			response:   testhelpers.MockResponse{Body: "not json"},
			wantKind:   domain.OutcomeTransient,
			check:      func(err error) bool { var e *providers.ParseError; return errors.As(err, &e) },
		},
		{
			name:       "no choices",
			response:   testhelpers.MockResponse{Body: `{"id":"x","choices":[]}`},
			wantKind:   domain.OutcomeTransient,
			check:      func(err error) bool { var e *providers.ParseError; return errors.As(err, &e) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testhelpers.NewMockServer()
			defer mock.Close()

			path := "/chat/completions"
			if tt.path != "" {
				path = tt.path
			}
			mock.SetResponse(path, tt.response)

			a := newTestAdapter(t, domain.ProviderOpenAI)
			ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())
			_, err := a.Complete(context.Background(), ch, testhelpers.TestMapping("gpt-4", "gpt-4"), testhelpers.TestChatRequest("gpt-4"))
			if err == nil {
				t.Fatal("Complete() error = nil")
			}

			kind, status := providers.Classify(err)
			if kind != tt.wantKind || status != tt.wantStatus {
				t.Errorf("Classify(%v) = %s/%d, want %s/%d", err, kind, status, tt.wantKind, tt.wantStatus)
			}
			if tt.check != nil && !tt.check(err) {
				t.Errorf("unexpected error: %#v", err)
			}
		})
	}
}

func TestAdapter_CompleteTimeout(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/chat/completions", testhelpers.MockTimeoutError(2*time.Second))

	a := newTestAdapter(t, domain.ProviderOpenAI)
	ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Complete(ctx, ch, testhelpers.TestMapping("gpt-4", "gpt-4"), testhelpers.TestChatRequest("gpt-4"))
	var timeout *providers.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if !providers.IsTransient(err) {
		t.Error("timeout should be transient")
	}
}

func TestAdapter_CompleteCanceled(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/chat/completions", testhelpers.MockTimeoutError(2*time.Second))

	a := newTestAdapter(t, domain.ProviderOpenAI)
	ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := a.Complete(ctx, ch, testhelpers.TestMapping("gpt-4", "gpt-4"), testhelpers.TestChatRequest("gpt-4"))
	if kind, _ := providers.Classify(err); kind != domain.OutcomeCanceled {
		t.Fatalf("Classify(%v) = %s, want canceled", err, kind)
	}
}

func TestAdapter_Stream(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/chat/completions", testhelpers.MockResponse{
		StreamChunks: []string{
			`{"id":"chatcmpl-123","model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			testhelpers.MockOpenAIStreamChunk("Hello", ""),
			testhelpers.MockOpenAIStreamChunk(", ", ""),
			testhelpers.MockOpenAIStreamChunk("world", ""),
			testhelpers.MockOpenAIStreamChunk("!", "stop"),
			testhelpers.MockOpenAIUsageChunk(12, 4),
		},
	})

	a := newTestAdapter(t, domain.ProviderOpenAI)
	ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())

	stream, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("gpt-4", "gpt-4"), testhelpers.TestChatRequest("gpt-4"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	chunks, err := testhelpers.CollectChunks(t, stream)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	if got := testhelpers.ConcatenateChunks(chunks); got != "Hello, world!" {
		t.Errorf("content = %q", got)
	}
	if chunks[0].Delta != "Hello" {
		t.Errorf("first chunk = %+v, role-only delta should be skipped", chunks[0])
	}
	usage := testhelpers.FinalUsage(chunks)
	if usage == nil || usage.CompletionTokens != 4 || usage.PromptTokens != 12 {
		t.Errorf("usage = %+v", usage)
	}

	body := mock.LastRequest().JSON()
	if body["stream"] != true {
		t.Error("stream flag not sent")
	}
	if opts, _ := body["stream_options"].(map[string]any); opts["include_usage"] != true {
		t.Errorf("stream_options = %v", body["stream_options"])
	}
}

func TestAdapter_StreamInterrupted(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/chat/completions", testhelpers.MockResponse{
		StreamChunks: []string{
			testhelpers.MockOpenAIStreamChunk("Hel", ""),
			testhelpers.MockOpenAIStreamChunk("lo", ""),
			testhelpers.MockOpenAIStreamChunk("!", "stop"),
		},
		AbortAfter: 2,
	})

	a := newTestAdapter(t, domain.ProviderOpenAI)
	ch := testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())

	stream, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("gpt-4", "gpt-4"), testhelpers.TestChatRequest("gpt-4"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	chunks, err := testhelpers.CollectChunks(t, stream)
	if err == nil {
		t.Fatal("expected a mid-stream error")
	}
	if len(chunks) != 2 {
		t.Errorf("received %d chunks before the error, want 2", len(chunks))
	}
	if !providers.IsTransient(err) {
		t.Errorf("mid-stream failure %v should be transient", err)
	}
}

func TestAdapter_StreamRejected(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/chat/completions", testhelpers.MockServerError())

	a := newTestAdapter(t, domain.ProviderLocal)
	ch := testhelpers.TestChannel("local", domain.ProviderLocal, mock.URL())

	if _, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("llama3", "llama3"), testhelpers.TestChatRequest("llama3")); err == nil {
		t.Fatal("Stream() should fail before any chunk on a 500")
	}
	if _, ok := mock.LastRequest().JSON()["stream_options"]; ok {
		t.Error("stream_options should only be sent to openai channels")
	}
}

func TestAdapter_Probe(t *testing.T) {
	tests := []struct {
		name      string
		kind      domain.ProviderType
		config    map[string]string
		path      string
		wantQuery string
	}{
		{name: "openai", kind: domain.ProviderOpenAI, path: "/models"},
		{name: "azure", kind: domain.ProviderAzure, path: "/openai/models", wantQuery: "api-version=" + DefaultAzureAPIVersion},
		{name: "custom probe path", kind: domain.ProviderCustom, config: map[string]string{ConfigProbePath: "health"}, path: "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testhelpers.NewMockServer()
			defer mock.Close()
			mock.SetResponse(tt.path, testhelpers.MockResponse{Body: `{"data":[]}`})

			a := newTestAdapter(t, tt.kind)
			ch := testhelpers.TestChannel("c1", tt.kind, mock.URL())
			ch.Config = tt.config

			if err := a.Probe(context.Background(), ch); err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			req := mock.LastRequest()
			if req.Method != http.MethodGet || req.Path != tt.path || req.Query != tt.wantQuery {
				t.Errorf("probe request = %s %s?%s", req.Method, req.Path, req.Query)
			}
		})
	}
}

func TestAdapter_ProbeFailure(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/models", testhelpers.MockAuthError())

	a := newTestAdapter(t, domain.ProviderOpenAI)
	if err := a.Probe(context.Background(), testhelpers.TestChannel("c1", domain.ProviderOpenAI, mock.URL())); err == nil {
		t.Fatal("Probe() should fail on 401")
	}
}

func TestAdapter_MissingBaseURL(t *testing.T) {
	a := newTestAdapter(t, domain.ProviderLocal)
	ch := testhelpers.TestChannel("local", domain.ProviderLocal, "")
	err := a.Probe(context.Background(), ch)
	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Probe() error = %v, want ConfigError", err)
	}
}
