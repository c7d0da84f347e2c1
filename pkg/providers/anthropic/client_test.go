package anthropic

import (
	"context"
	"errors"
	"net/http"
	"testing"

	testhelpers "weaver-hq/loom/internal/providers"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	client := providers.NewHTTPClient(providers.ClientConfig{})
	t.Cleanup(client.Close)
	return New(client)
}

func TestAdapter_Complete(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/v1/messages", testhelpers.MockResponse{
		Body: testhelpers.MockAnthropicResponse("Hello, world!", "claude-3-5-sonnet"),
	})

	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, mock.URL())
	req := testhelpers.TestChatRequest("sonnet",
		testhelpers.TestMessage("system", "be brief"),
		testhelpers.TestMessage("user", "Hello"),
	)
	req.MaxTokens = 0

	resp, err := a.Complete(context.Background(), ch, domain.ModelMapping{Model: "sonnet", Target: "claude-3-5-sonnet", Override: map[string]any{"top_k": 5}}, req)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Content != "Hello, world!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 20 || resp.Usage.TotalTokens != 30 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	sent := mock.LastRequest()
	if err := testhelpers.ExpectHeader(sent, "x-api-key", "test-key"); err != nil {
		t.Error(err)
	}
	if err := testhelpers.ExpectHeader(sent, "anthropic-version", DefaultAnthropicVersion); err != nil {
		t.Error(err)
	}
	body := sent.JSON()
	if body["system"] != "be brief" {
		t.Errorf("system = %v", body["system"])
	}
	if body["model"] != "claude-3-5-sonnet" {
		t.Errorf("model = %v", body["model"])
	}
	if body["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("max_tokens = %v, want default %d", body["max_tokens"], DefaultMaxTokens)
	}
	if body["top_k"] != float64(5) {
		t.Errorf("top_k = %v, want mapping override", body["top_k"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 1 {
		t.Errorf("messages = %v, want system message extracted", body["messages"])
	}
}

func TestAdapter_RejectsBadSequence(t *testing.T) {
	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, "http://127.0.0.1:1")

	tests := []struct {
		name     string
		messages []domain.Message
	}{
		{name: "assistant first", messages: []domain.Message{{Role: "assistant", Content: "hi"}}},
		{name: "consecutive user", messages: []domain.Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}}},
		{name: "system only", messages: []domain.Message{{Role: "system", Content: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Complete(context.Background(), ch, testhelpers.TestMapping("m", "m"), &domain.ChatRequest{Model: "m", Messages: tt.messages})
			var vErr *providers.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if kind, _ := providers.Classify(err); kind != domain.OutcomeFatal {
				t.Errorf("kind = %s, want fatal", kind)
			}
		})
	}
}

func TestAdapter_MissingKey(t *testing.T) {
	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, "http://127.0.0.1:1")
	ch.APIKey = ""

	err := a.Probe(context.Background(), ch)
	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Probe() error = %v, want ConfigError", err)
	}
}

func TestAdapter_Stream(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse("/v1/messages", testhelpers.MockResponse{
		StreamEvents: testhelpers.MockAnthropicStream("claude-3-5-sonnet", 25, 7, "Hello", ", ", "world!"),
	})

	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, mock.URL())

	stream, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("sonnet", "claude-3-5-sonnet"), testhelpers.TestChatRequest("sonnet"))
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

	last := chunks[len(chunks)-1]
	if last.FinishReason != providers.FinishReasonStop {
		t.Errorf("final chunk finish reason = %q", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.PromptTokens != 25 || last.Usage.CompletionTokens != 7 {
		t.Errorf("final usage = %+v", last.Usage)
	}
	if chunks[0].ID != "msg_123" || chunks[0].Model != "claude-3-5-sonnet" {
		t.Errorf("chunk identity = %q/%q", chunks[0].ID, chunks[0].Model)
	}
	if mock.LastRequest().JSON()["stream"] != true {
		t.Error("stream flag not sent")
	}
}

func TestAdapter_StreamErrorEvent(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	events := testhelpers.MockAnthropicStream("claude", 5, 5, "partial")
	// Replace everything after the first delta with an overload error.
	events = append(events[:4], testhelpers.MockAnthropicStreamEvent("error", map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
	}))
	mock.SetResponse("/v1/messages", testhelpers.MockResponse{StreamEvents: events})

	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, mock.URL())

	stream, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("m", "m"), testhelpers.TestChatRequest("m"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	chunks, err := testhelpers.CollectChunks(t, stream)
	var streamErr *providers.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("stream error = %v, want StreamError", err)
	}
	if len(chunks) != 1 || chunks[0].Delta != "partial" {
		t.Errorf("chunks before error = %+v", chunks)
	}
}

func TestAdapter_StreamTruncated(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	events := testhelpers.MockAnthropicStream("claude", 5, 5, "a", "b")
	mock.SetResponse("/v1/messages", testhelpers.MockResponse{StreamEvents: events[:len(events)-1]})

	a := newTestAdapter(t)
	ch := testhelpers.TestChannel("claude", domain.ProviderAnthropic, mock.URL())

	stream, err := a.Stream(context.Background(), ch, testhelpers.TestMapping("m", "m"), testhelpers.TestChatRequest("m"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if _, err := testhelpers.CollectChunks(t, stream); err == nil {
		t.Fatal("stream without message_stop should end with an error")
	}
}

func TestAdapter_Probe(t *testing.T) {
	tests := []struct {
		name     string
		response testhelpers.MockResponse
		wantErr  bool
	}{
		{name: "ok", response: testhelpers.MockResponse{Body: testhelpers.MockAnthropicResponse(".", "claude")}},
		{name: "bad request is reachable", response: testhelpers.MockErrorResponse(http.StatusBadRequest, "model: not found")},
		{name: "rate limited is reachable", response: testhelpers.MockRateLimitError(1)},
		{name: "auth failure", response: testhelpers.MockAuthError(), wantErr: true},
		{name: "overloaded", response: testhelpers.MockErrorResponse(529, "Overloaded"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testhelpers.NewMockServer()
			defer mock.Close()
			mock.SetResponse("/v1/messages", tt.response)

			a := newTestAdapter(t)
			err := a.Probe(context.Background(), testhelpers.TestChannel("claude", domain.ProviderAnthropic, mock.URL()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe() error = %v, wantErr %v", err, tt.wantErr)
			}

			body := mock.LastRequest().JSON()
			if body["max_tokens"] != float64(1) || body["model"] != DefaultProbeModel {
				t.Errorf("probe body = %v", body)
			}
		})
	}
}
