package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockServer is a mock HTTP server for testing provider adapters.
// It simulates upstream API responses including errors, delays and
// streaming, and records the requests it received.
type MockServer struct {
	server    *httptest.Server
	responses map[string]MockResponse
	requests  []RecordedRequest
	mu        sync.Mutex
}

// MockResponse defines a mock response configuration.
type MockResponse struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string

	// StreamChunks are sent as "data: <chunk>" events followed by
	// "data: [DONE]".
	StreamChunks []string

	// StreamEvents are written verbatim, each followed by a blank line.
	// Use them for upstreams with named events or without [DONE].
	StreamEvents []string

	// AbortAfter closes the connection after that many stream chunks or
	// events without finishing the stream. Zero disables it.
	AbortAfter int
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// JSON decodes the recorded body into a generic map.
func (r RecordedRequest) JSON() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(r.Body, &m)
	return m
}

// NewMockServer creates a new mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses: make(map[string]MockResponse),
	}

	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))

	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse sets a mock response for a specific path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.responses[path] = response
}

// GetRequestCount returns the number of requests received.
func (ms *MockServer) GetRequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return len(ms.requests)
}

// Requests returns a copy of the recorded requests.
func (ms *MockServer) Requests() []RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return append([]RecordedRequest(nil), ms.requests...)
}

// LastRequest returns the most recent request. It panics if none was
// received.
func (ms *MockServer) LastRequest() RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.requests[len(ms.requests)-1]
}

// handler handles incoming HTTP requests.
func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	response, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if response.Delay > 0 {
		select {
		case <-time.After(response.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}

	if len(response.StreamChunks) > 0 || len(response.StreamEvents) > 0 {
		ms.handleStream(w, r, response)
		return
	}

	if response.StatusCode == 0 {
		response.StatusCode = http.StatusOK
	}
	w.WriteHeader(response.StatusCode)

	if response.Body != nil {
		switch v := response.Body.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		case []byte:
			_, _ = w.Write(v)
		default:
			_ = json.NewEncoder(w).Encode(response.Body)
		}
	}
}

// handleStream handles Server-Sent Events streaming responses.
func (ms *MockServer) handleStream(w http.ResponseWriter, r *http.Request, response MockResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	frames := make([]string, 0, len(response.StreamChunks)+len(response.StreamEvents)+1)
	for _, chunk := range response.StreamChunks {
		frames = append(frames, "data: "+chunk)
	}
	frames = append(frames, response.StreamEvents...)
	if len(response.StreamChunks) > 0 {
		frames = append(frames, "data: [DONE]")
	}

	for i, frame := range frames {
		if response.AbortAfter > 0 && i == response.AbortAfter {
			abort(w)
			return
		}
		fmt.Fprintf(w, "%s\n\n", frame)
		flusher.Flush()

		select {
		case <-time.After(5 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
	}
}

// abort drops the connection without terminating the chunked body, which
// the client sees as an unexpected EOF.
func abort(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic(http.ErrAbortHandler)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}
	conn.Close()
}

// MockOpenAIResponse creates a mock OpenAI chat completion response.
func MockOpenAIResponse(content string, model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// MockOpenAIStreamChunk creates a mock OpenAI streaming chunk. An empty
// finishReason is sent as null.
func MockOpenAIStreamChunk(delta string, finishReason string) string {
	var reason any
	if finishReason != "" {
		reason = finishReason
	}
	chunk := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gpt-4",
		"choices": []map[string]any{
			{
				"index": 0,
				"delta": map[string]any{
					"content": delta,
				},
				"finish_reason": reason,
			},
		},
	}

	bytes, _ := json.Marshal(chunk)
	return string(bytes)
}

// MockOpenAIUsageChunk creates the trailing usage chunk OpenAI sends when
// stream_options.include_usage is set.
func MockOpenAIUsageChunk(prompt, completion int) string {
	chunk := map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion.chunk",
		"model":   "gpt-4",
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
	bytes, _ := json.Marshal(chunk)
	return string(bytes)
}

// MockAnthropicResponse creates a mock Anthropic messages response.
func MockAnthropicResponse(content string, model string) map[string]any {
	return map[string]any{
		"id":   "msg_123",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{
				"type": "text",
				"text": content,
			},
		},
		"model":       model,
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  10,
			"output_tokens": 20,
		},
	}
}

// MockAnthropicStreamEvent creates a mock Anthropic stream event frame.
func MockAnthropicStreamEvent(eventType string, data any) string {
	var eventData string

	if data != nil {
		bytes, _ := json.Marshal(data)
		eventData = string(bytes)
	}

	return fmt.Sprintf("event: %s\ndata: %s", eventType, eventData)
}

// MockAnthropicStream builds a complete Anthropic event stream that emits
// deltas and reports the given usage.
func MockAnthropicStream(model string, inputTokens, outputTokens int, deltas ...string) []string {
	events := []string{
		MockAnthropicStreamEvent("message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id": "msg_123", "type": "message", "role": "assistant", "model": model,
				"content": []any{},
				"usage":   map[string]any{"input_tokens": inputTokens, "output_tokens": 1},
			},
		}),
		MockAnthropicStreamEvent("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		}),
		MockAnthropicStreamEvent("ping", map[string]any{"type": "ping"}),
	}
	for _, d := range deltas {
		events = append(events, MockAnthropicStreamEvent("content_block_delta", map[string]any{
			"type": "content_block_delta", "index": 0,
			"delta": map[string]any{"type": "text_delta", "text": d},
		}))
	}
	events = append(events,
		MockAnthropicStreamEvent("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0}),
		MockAnthropicStreamEvent("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn"},
			"usage": map[string]any{"output_tokens": outputTokens},
		}),
		MockAnthropicStreamEvent("message_stop", map[string]any{"type": "message_stop"}),
	)
	return events
}

// MockGeminiResponse creates a mock Gemini generateContent response.
func MockGeminiResponse(content string, model string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": content}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]any{
			"promptTokenCount":     10,
			"candidatesTokenCount": 20,
			"totalTokenCount":      30,
		},
		"modelVersion": model,
	}
}

// MockGeminiStreamChunk creates one streamGenerateContent SSE payload. An
// empty finishReason is omitted. Usage is attached when completion > 0.
func MockGeminiStreamChunk(text, finishReason string, prompt, completion int) string {
	candidate := map[string]any{
		"content": map[string]any{
			"role":  "model",
			"parts": []map[string]any{{"text": text}},
		},
	}
	if finishReason != "" {
		candidate["finishReason"] = finishReason
	}
	chunk := map[string]any{"candidates": []any{candidate}}
	if completion > 0 {
		chunk["usageMetadata"] = map[string]any{
			"promptTokenCount":     prompt,
			"candidatesTokenCount": completion,
			"totalTokenCount":      prompt + completion,
		}
	}
	bytes, _ := json.Marshal(chunk)
	return "data: " + string(bytes)
}

// MockErrorResponse creates a mock error response.
func MockErrorResponse(statusCode int, message string) MockResponse {
	body := map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    statusCode,
		},
	}

	return MockResponse{
		StatusCode: statusCode,
		Body:       body,
	}
}

// MockAuthError creates a 401 authentication error response.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// MockRateLimitError creates a 429 rate limit error response.
func MockRateLimitError(retryAfter int) MockResponse {
	response := MockErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	response.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfter),
	}
	return response
}

// MockTimeoutError creates a slow response to simulate timeout.
func MockTimeoutError(delay time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       MockOpenAIResponse("timeout", "gpt-4"),
		Delay:      delay,
	}
}

// MockServerError creates a 500 internal server error response.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// ExpectHeader checks if a request has a specific header value.
func ExpectHeader(r RecordedRequest, key, value string) error {
	actual := r.Header.Get(key)
	if !strings.Contains(actual, value) {
		return fmt.Errorf("header %q mismatch: expected %q, got %q", key, value, actual)
	}
	return nil
}
