package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/middleware"
	"weaver-hq/loom/pkg/proxy/types"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
)

type fakeRouter struct {
	result *dispatch.Result
	err    error
	models []string

	got *domain.RequestContext
}

func (f *fakeRouter) Route(_ context.Context, rc *domain.RequestContext) (*dispatch.Result, error) {
	f.got = rc
	return f.result, f.err
}

func (f *fakeRouter) Models(_ context.Context, rc *domain.RequestContext) ([]string, error) {
	f.got = rc
	return f.models, f.err
}

const chatBody = `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}],"user":"u-1"}`

func newChatRequest(body string, p *middleware.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	if p != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), p))
	}
	return req
}

func acme() *middleware.Principal {
	return &middleware.Principal{
		TenantID:      "acme",
		APIKeyID:      "key_0102",
		AllowedModels: []string{"gpt-4o"},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorDetail {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestChatHandler_Completion(t *testing.T) {
	router := &fakeRouter{result: &dispatch.Result{
		Response: &domain.Response{
			Model:        "gpt-4o-2024-08-06",
			Content:      "hi there",
			FinishReason: "stop",
			Usage:        domain.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		},
		ChannelID: "ch-b",
		Model:     "gpt-4o-2024-08-06",
		Attempts:  2,
	}}
	h := NewChatHandler(router, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newChatRequest(chatBody, acme()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(ChannelHeader); got != "ch-b" {
		t.Errorf("%s = %q", ChannelHeader, got)
	}
	if got := rec.Header().Get(AttemptsHeader); got != "2" {
		t.Errorf("%s = %q", AttemptsHeader, got)
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("model = %q, want the requested model", resp.Model)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi there" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	rc := router.got
	if rc.TenantID != "acme" || rc.APIKeyID != "key_0102" || rc.Model != "gpt-4o" || rc.Stream {
		t.Errorf("request context = %+v", rc)
	}
	if rc.Payload == nil || len(rc.Payload.Messages) != 1 || rc.Payload.Messages[0].Content != "hello" {
		t.Errorf("payload = %+v", rc.Payload)
	}
	if rc.AffinityKey != "" {
		t.Errorf("affinity key = %q without affinity enabled", rc.AffinityKey)
	}
}

func TestChatHandler_AffinityKey(t *testing.T) {
	tests := []struct {
		name    string
		session string
		want    string
	}{
		{"session header wins", "sess-9", "sess-9"},
		{"falls back to user", "", "u-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{result: &dispatch.Result{Response: &domain.Response{}}}
			p := acme()
			p.Affinity = true
			req := newChatRequest(chatBody, p)
			if tt.session != "" {
				req.Header.Set("X-Session-ID", tt.session)
			}

			NewChatHandler(router, 0).ServeHTTP(httptest.NewRecorder(), req)

			if router.got == nil || router.got.AffinityKey != tt.want {
				t.Errorf("affinity key = %v, want %q", router.got, tt.want)
			}
		})
	}
}

func TestChatHandler_PreferredChannel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		fromHeader bool
		header     string
		want       string
	}{
		{name: "tenant preference", configured: "ch-2", want: "ch-2"},
		{name: "header ignored unless allowed", configured: "ch-2", header: "ch-9", want: "ch-2"},
		{name: "header overrides", configured: "ch-2", fromHeader: true, header: "ch-9", want: "ch-9"},
		{name: "empty header keeps tenant preference", configured: "ch-2", fromHeader: true, want: "ch-2"},
		{name: "none", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{result: &dispatch.Result{Response: &domain.Response{}}}
			p := acme()
			p.PreferredChannel = tt.configured
			p.ChannelHeader = tt.fromHeader
			req := newChatRequest(chatBody, p)
			if tt.header != "" {
				req.Header.Set(proxy.PreferredChannelHeader, tt.header)
			}

			NewChatHandler(router, 0).ServeHTTP(httptest.NewRecorder(), req)

			if router.got == nil || router.got.PreferredChannel != tt.want {
				t.Errorf("preferred channel = %v, want %q", router.got, tt.want)
			}
		})
	}
}

func TestChatHandler_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		body      string
		principal *middleware.Principal
		maxBody   int64
		status    int
		code      string
	}{
		{"wrong method", http.MethodGet, "", acme(), 0, http.StatusMethodNotAllowed, types.CodeMethodNotAllowed},
		{"no principal", http.MethodPost, chatBody, nil, 0, http.StatusUnauthorized, types.CodeInvalidAPIKey},
		{"invalid json", http.MethodPost, `{"model":`, acme(), 0, http.StatusBadRequest, types.CodeInvalidJSON},
		{"missing messages", http.MethodPost, `{"model":"gpt-4o"}`, acme(), 0, http.StatusBadRequest, types.CodeInvalidValue},
		{"body too large", http.MethodPost, chatBody, acme(), 16, http.StatusRequestEntityTooLarge, types.CodeRequestTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &fakeRouter{}
			req := httptest.NewRequest(tt.method, "/v1/chat/completions", strings.NewReader(tt.body))
			if tt.principal != nil {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()

			NewChatHandler(router, tt.maxBody).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
			if router.got != nil {
				t.Error("router called for a rejected request")
			}
		})
	}
}

func TestChatHandler_RouteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{
			name:   "no eligible channel",
			err:    &routing.NoEligibleChannelError{TenantID: "acme", Model: "gpt-4o"},
			status: http.StatusServiceUnavailable,
			code:   types.CodeNoEligibleChannel,
		},
		{
			name:       "rate limited",
			err:        &limits.LimitError{TenantID: "acme", Reason: domain.DenyRateLimit, RetryAfter: 1500 * time.Millisecond},
			status:     http.StatusTooManyRequests,
			code:       types.CodeRateLimited,
			retryAfter: "2",
		},
		{
			name:   "budget exceeded",
			err:    &limits.LimitError{TenantID: "acme", Reason: domain.DenyBudget},
			status: http.StatusPaymentRequired,
			code:   types.CodeBudgetExceeded,
		},
		{
			name:   "upstream fatal keeps the upstream status",
			err:    &dispatch.UpstreamError{ChannelID: "ch-a", Kind: domain.OutcomeFatal, StatusCode: http.StatusUnprocessableEntity, Err: errors.New("bad prompt")},
			status: http.StatusUnprocessableEntity,
			code:   types.CodeUpstreamError,
		},
		{
			name:   "unknown error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   types.CodeInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewChatHandler(&fakeRouter{err: tt.err}, 0).ServeHTTP(rec, newChatRequest(chatBody, acme()))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if got := decodeError(t, rec).Code; got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}

func streamOf(chunks ...domain.Chunk) <-chan domain.Chunk {
	ch := make(chan domain.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func sseEvents(body string) []string {
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		if data, ok := strings.CutPrefix(block, "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}

func TestChatHandler_Stream(t *testing.T) {
	router := &fakeRouter{result: &dispatch.Result{
		Stream: streamOf(
			domain.Chunk{Delta: "Hel"},
			domain.Chunk{Delta: "lo"},
			domain.Chunk{FinishReason: "stop", Usage: &domain.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}},
		),
		ChannelID: "ch-a",
		Attempts:  1,
	}}

	rec := httptest.NewRecorder()
	NewChatHandler(router, 0).ServeHTTP(rec, newChatRequest(chatBody, acme()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := sseEvents(rec.Body.String())
	if len(events) != 4 || events[3] != "[DONE]" {
		t.Fatalf("events = %q", events)
	}

	var ids []string
	var text strings.Builder
	for _, e := range events[:3] {
		var c types.ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(e), &c); err != nil {
			t.Fatalf("decode %q: %v", e, err)
		}
		ids = append(ids, c.ID)
		text.WriteString(c.Choices[0].Delta.Content)
		if c.Model != "gpt-4o" {
			t.Errorf("chunk model = %q", c.Model)
		}
	}
	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Errorf("chunk ids differ: %v", ids)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if !strings.Contains(events[2], `"finish_reason":"stop"`) || !strings.Contains(events[2], `"total_tokens":5`) {
		t.Errorf("final chunk = %s", events[2])
	}
}

func TestChatHandler_StreamInterrupted(t *testing.T) {
	interrupted := &dispatch.StreamInterruptedError{ChannelID: "ch-a", Tokens: 1, Err: errors.New("connection reset")}
	router := &fakeRouter{result: &dispatch.Result{
		Stream:    streamOf(domain.Chunk{Delta: "Hel"}, domain.Chunk{Err: interrupted}),
		ChannelID: "ch-a",
	}}

	rec := httptest.NewRecorder()
	NewChatHandler(router, 0).ServeHTTP(rec, newChatRequest(chatBody, acme()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	events := sseEvents(rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %q", events)
	}

	var errResp types.ErrorResponse
	if err := json.Unmarshal([]byte(events[1]), &errResp); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if errResp.Error.Code != types.CodeStreamInterrupted {
		t.Errorf("code = %q", errResp.Error.Code)
	}
	if events[2] != "[DONE]" {
		t.Errorf("last event = %q", events[2])
	}
}

func TestModelsHandler(t *testing.T) {
	router := &fakeRouter{models: []string{"claude-3-5-sonnet", "gpt-4o"}}
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), acme()))
	rec := httptest.NewRecorder()

	NewModelsHandler(router).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list types.ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 2 || list.Data[1].ID != "gpt-4o" {
		t.Errorf("list = %+v", list)
	}
	if router.got.TenantID != "acme" || len(router.got.AllowedModels) != 1 {
		t.Errorf("request context = %+v", router.got)
	}
}

func TestModelsHandler_UnknownTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req = req.WithContext(middleware.WithPrincipal(req.Context(), acme()))
	rec := httptest.NewRecorder()

	NewModelsHandler(&fakeRouter{err: domain.ErrTenantNotFound}).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

type fakeInspector struct {
	probed bool
}

func (f *fakeInspector) ChannelHealth() []health.ChannelHealth {
	return []health.ChannelHealth{
		{ChannelID: "ch-a", State: health.Closed, Eligible: true},
		{ChannelID: "ch-b", State: health.Open, ConsecutiveFailures: 5},
	}
}

func (f *fakeInspector) ChannelStats() []aggregate.Stats {
	return []aggregate.Stats{{ChannelID: "ch-a", Model: "gpt-4o", Samples: 10, ErrorRate: 0.1}}
}

func (f *fakeInspector) RoutingStats() *routing.RoutingStats {
	return &routing.RoutingStats{TotalRequests: 10}
}

func (f *fakeInspector) ProbeNow(context.Context) []health.ProbeResult {
	f.probed = true
	return []health.ProbeResult{
		{ChannelID: "ch-a"},
		{ChannelID: "ch-b", Err: errors.New("refused"), Error: "refused"},
	}
}

func TestAdminHandler(t *testing.T) {
	inspector := &fakeInspector{}
	mux := http.NewServeMux()
	NewAdminHandler(inspector).Register(mux, func(h http.Handler) http.Handler { return h })

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/channels/health", nil))

		var resp ChannelHealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Channels) != 2 || resp.Channels[1].ConsecutiveFailures != 5 {
			t.Errorf("channels = %+v", resp.Channels)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/channels/stats", nil))

		var resp ChannelStatsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Channels) != 1 || resp.Routing == nil || resp.Routing.TotalRequests != 10 {
			t.Errorf("stats = %+v", resp)
		}
	})

	t.Run("probe", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/channels/probe", nil))

		var resp ProbeResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !inspector.probed || resp.Healthy != 1 || resp.Failed != 1 {
			t.Errorf("probe = %+v", resp)
		}
	})

	t.Run("probe requires POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/channels/probe", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
