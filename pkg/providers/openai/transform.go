package openai

import (
	"encoding/json"
	"errors"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// OpenAI API request/response types

// OpenAIRequest represents an OpenAI chat completion request.
type OpenAIRequest struct {
	Model         string          `json:"model"`
	Messages      []OpenAIMessage `json:"messages"`
	Temperature   *float64        `json:"temperature,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	Stop          []string        `json:"stop,omitempty"`
	User          string          `json:"user,omitempty"`

	// Extra holds pass-through parameters and mapping overrides. They are
	// merged into the top-level JSON object and win over the typed fields,
	// except for model, messages and stream.
	Extra map[string]any `json:"-"`
}

// StreamOptions asks OpenAI to append a usage chunk to the stream.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// reserved fields are owned by the adapter and never overridden by Extra.
var reserved = map[string]bool{"model": true, "messages": true, "stream": true, "stream_options": true}

// MarshalJSON implements json.Marshaler.
func (r OpenAIRequest) MarshalJSON() ([]byte, error) {
	type plain OpenAIRequest
	b, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}

	var merged map[string]any
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if !reserved[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// OpenAIMessage represents a message in OpenAI format.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// OpenAIResponse represents an OpenAI chat completion response.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

// OpenAIChoice represents a completion choice in OpenAI format.
type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// OpenAIUsage represents token usage in OpenAI format.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAI streaming response types

// OpenAIStreamResponse represents a chunk in OpenAI's SSE stream.
type OpenAIStreamResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Usage   *OpenAIUsage         `json:"usage,omitempty"`

	// Error is set when the upstream reports a failure inside the stream.
	Error *OpenAIError `json:"error,omitempty"`
}

// OpenAIStreamChoice represents a choice in a stream chunk.
type OpenAIStreamChoice struct {
	Index        int               `json:"index"`
	Delta        OpenAIStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

// OpenAIStreamDelta represents the incremental content in a stream chunk.
type OpenAIStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// OpenAIError is the error object OpenAI-compatible servers embed in
// stream events.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Transformation functions

// transformRequest builds the upstream request for a mapping.
func transformRequest(req *domain.ChatRequest, mapping domain.ModelMapping) *OpenAIRequest {
	out := &OpenAIRequest{
		Model:       mapping.Target,
		Messages:    make([]OpenAIMessage, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
		User:        req.User,
		Extra:       providers.MergeParams(req, mapping),
	}
	if out.Model == "" {
		out.Model = req.Model
	}

	for i, msg := range req.Messages {
		out.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	return out
}

// transformResponse transforms an OpenAI response to the gateway format.
func transformResponse(resp *OpenAIResponse) (*domain.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	choice := resp.Choices[0]
	usage := domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &domain.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage:        usage,
		Created:      resp.Created,
	}, nil
}

// transformStreamChunk transforms an OpenAI stream chunk. The second
// return value is false for chunks that carry nothing worth relaying, such
// as the leading role-only delta.
func transformStreamChunk(chunk *OpenAIStreamResponse) (domain.Chunk, bool) {
	out := domain.Chunk{
		ID:      chunk.ID,
		Model:   chunk.Model,
		Created: chunk.Created,
	}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		out.Delta = choice.Delta.Content
		if choice.FinishReason != nil {
			out.FinishReason = normalizeFinishReason(*choice.FinishReason)
		}
	}

	if chunk.Usage != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}

	return out, out.Delta != "" || out.FinishReason != "" || out.Usage != nil
}

// normalizeFinishReason normalizes OpenAI finish reasons.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "stop":
		return providers.FinishReasonStop
	case "length":
		return providers.FinishReasonLength
	case "tool_calls", "function_call":
		return providers.FinishReasonToolCalls
	case "content_filter":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
