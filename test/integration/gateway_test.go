package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	testhelpers "weaver-hq/loom/internal/providers"
	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/proxy/types"
	"weaver-hq/loom/pkg/server"
)

const channelsTemplate = `
tenants:
  - id: acme
    channels:
      - id: primary
        type: openai
        base_url: %s/v1
        api_key: sk-primary
        priority: 10
        models: [gpt-4o]
      - id: backup
        type: openai
        base_url: %s/v1
        api_key: sk-backup
        models: [gpt-4o]
  - id: limited
    channels:
      - id: limited-1
        type: openai
        base_url: %s/v1
        api_key: sk-limited
        models: [gpt-4o]
`

type env struct {
	primary *testhelpers.MockServer
	backup  *testhelpers.MockServer
	srv     *server.Server
	http    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		primary: testhelpers.NewMockServer(),
		backup:  testhelpers.NewMockServer(),
	}
	t.Cleanup(e.primary.Close)
	t.Cleanup(e.backup.Close)

	dir := t.TempDir()
	channelsFile := filepath.Join(dir, "channels.yaml")
	body := fmt.Sprintf(channelsTemplate, e.primary.URL(), e.backup.URL(), e.backup.URL())
	if err := os.WriteFile(channelsFile, []byte(body), 0o600); err != nil {
		t.Fatalf("write channels file: %v", err)
	}

	cfg := config.NewDefault()
	cfg.Channels.File = channelsFile
	cfg.Channels.Watch = false
	cfg.Health.Probe.Enabled = false
	cfg.AttemptLog.Backend = "memory"
	cfg.Limits.Ledger.Backend = "memory"
	cfg.Server.AdminKeys = []string{"admin-key"}
	cfg.Tenants = []config.TenantConfig{
		{ID: "acme", APIKeys: []string{"sk-acme"}},
		{
			ID:        "limited",
			APIKeys:   []string{"sk-limited-tenant"},
			RateLimit: &config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1},
		},
	}
	config.ApplyDefaults(cfg)

	srv, err := server.New(context.Background(), cfg, server.BuildInfo{Version: "test"})
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	e.srv = srv
	e.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		e.http.Close()
		_ = srv.Shutdown(context.Background())
	})
	return e
}

func (e *env) do(t *testing.T, method, path, key, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const chatBody = `{"model":"gpt-4o","messages":[{"role":"user","content":"Say hello"}]}`

func TestGateway_FailoverToBackup(t *testing.T) {
	e := newEnv(t)
	e.primary.SetResponse("/v1/chat/completions", testhelpers.MockServerError())
	e.backup.SetResponse("/v1/chat/completions", testhelpers.MockResponse{
		Body: testhelpers.MockOpenAIResponse("Hello from backup", "gpt-4o-2024-08-06"),
	})

	resp := e.do(t, http.MethodPost, "/v1/chat/completions", "sk-acme", chatBody)

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, b)
	}
	if got := resp.Header.Get("X-Loom-Channel"); got != "backup" {
		t.Errorf("served by %q, want backup", got)
	}
	if got := resp.Header.Get("X-Loom-Attempts"); got != "2" {
		t.Errorf("attempts = %q, want 2", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	var out types.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Choices[0].Message.Content != "Hello from backup" || out.Model != "gpt-4o" {
		t.Errorf("response = %+v", out)
	}

	if n := e.primary.GetRequestCount(); n != 1 {
		t.Errorf("primary received %d requests, want 1", n)
	}
	if err := testhelpers.ExpectHeader(e.backup.LastRequest(), "Authorization", "Bearer sk-backup"); err != nil {
		t.Error(err)
	}

	t.Run("health shows the failure", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/admin/channels/health", "admin-key", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var body struct {
			Channels []struct {
				ChannelID           string `json:"channel_id"`
				ConsecutiveFailures int    `json:"consecutive_failures"`
			} `json:"channels"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		failures := map[string]int{}
		for _, ch := range body.Channels {
			failures[ch.ChannelID] = ch.ConsecutiveFailures
		}
		if failures["primary"] != 1 {
			t.Errorf("primary failures = %d, want 1", failures["primary"])
		}
	})

	t.Run("metrics count the route", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/metrics", "", "")
		b, _ := io.ReadAll(resp.Body)
		for _, want := range []string{
			`loom_route_requests_total{model="gpt-4o",result="success",tenant="acme"} 1`,
			`loom_failovers_total{from="primary",to="backup"} 1`,
		} {
			if !strings.Contains(string(b), want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})
}

func TestGateway_Stream(t *testing.T) {
	e := newEnv(t)
	e.primary.SetResponse("/v1/chat/completions", testhelpers.MockResponse{
		StreamChunks: []string{
			testhelpers.MockOpenAIStreamChunk("Hel", ""),
			testhelpers.MockOpenAIStreamChunk("lo", "stop"),
			testhelpers.MockOpenAIUsageChunk(4, 2),
		},
	})

	body := `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"Say hello"}]}`
	resp := e.do(t, http.MethodPost, "/v1/chat/completions", "sk-acme", body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var text strings.Builder
	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		events = append(events, data)
		if data == "[DONE]" {
			break
		}
		var chunk types.ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if len(chunk.Choices) > 0 {
			text.WriteString(chunk.Choices[0].Delta.Content)
		}
	}

	if text.String() != "Hello" {
		t.Errorf("text = %q, want Hello", text.String())
	}
	if len(events) == 0 || events[len(events)-1] != "[DONE]" {
		t.Errorf("stream not terminated: %q", events)
	}
	for _, ev := range events {
		if strings.Contains(ev, `"error"`) {
			t.Errorf("unexpected error event %s", ev)
		}
	}
}

func TestGateway_Auth(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"unknown tenant key", http.MethodPost, "/v1/chat/completions", "sk-unknown", http.StatusUnauthorized},
		{"missing tenant key", http.MethodGet, "/v1/models", "", http.StatusUnauthorized},
		{"tenant key on admin route", http.MethodGet, "/admin/channels/stats", "sk-acme", http.StatusUnauthorized},
		{"admin key", http.MethodGet, "/admin/channels/stats", "admin-key", http.StatusOK},
		{"liveness is open", http.MethodGet, "/health", "", http.StatusOK},
		{"readiness is open", http.MethodGet, "/ready", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := ""
			if tt.method == http.MethodPost {
				body = chatBody
			}
			resp := e.do(t, tt.method, tt.path, tt.key, body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGateway_Models(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/v1/models", "sk-acme", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list types.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "gpt-4o" {
		t.Errorf("models = %+v", list.Data)
	}
}

func TestGateway_RateLimit(t *testing.T) {
	e := newEnv(t)
	e.backup.SetResponse("/v1/chat/completions", testhelpers.MockResponse{
		Body: testhelpers.MockOpenAIResponse("ok", "gpt-4o"),
	})

	first := e.do(t, http.MethodPost, "/v1/chat/completions", "sk-limited-tenant", chatBody)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	second := e.do(t, http.MethodPost, "/v1/chat/completions", "sk-limited-tenant", chatBody)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	var errResp types.ErrorResponse
	if err := json.NewDecoder(second.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Error.Code != types.CodeRateLimited {
		t.Errorf("code = %q", errResp.Error.Code)
	}
	if n := e.backup.GetRequestCount(); n != 1 {
		t.Errorf("upstream received %d requests, want 1", n)
	}
}

func TestGateway_UnknownModel(t *testing.T) {
	e := newEnv(t)

	body := `{"model":"claude-3-opus","messages":[{"role":"user","content":"hi"}]}`
	resp := e.do(t, http.MethodPost, "/v1/chat/completions", "sk-acme", body)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if e.primary.GetRequestCount()+e.backup.GetRequestCount() != 0 {
		t.Error("upstream called for a model no channel serves")
	}
}
