package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// DefaultMaxTokens is sent when the client did not set max_tokens, which
// Anthropic requires.
const DefaultMaxTokens = 4096

// Anthropic API request/response types

// AnthropicRequest represents an Anthropic messages request.
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`

	// Extra holds mapping overrides such as top_k. They are merged into the
	// top-level JSON object.
	Extra map[string]any `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (r AnthropicRequest) MarshalJSON() ([]byte, error) {
	type plain AnthropicRequest
	b, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return b, err
	}

	var merged map[string]any
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		switch k {
		case "model", "messages", "stream", "system":
		default:
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// AnthropicMessage represents a message in Anthropic format.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock represents a content block in Anthropic format.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents an Anthropic messages response.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage in Anthropic format.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Anthropic streaming response types

// AnthropicStreamEvent represents an event in Anthropic's SSE stream.
type AnthropicStreamEvent struct {
	Type string `json:"type"`

	// For message_start event
	Message *AnthropicResponse `json:"message,omitempty"`

	// For content_block_start event
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// Delta is the text delta of content_block_delta events and the stop
	// reason of message_delta events.
	Delta *StreamDelta `json:"delta,omitempty"`

	// For message_delta event
	Usage *AnthropicUsage `json:"usage,omitempty"`

	// For error event
	Error *AnthropicError `json:"error,omitempty"`
}

// StreamDelta is the union of Anthropic's content and message deltas.
type StreamDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// AnthropicError is the error object of an error event.
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Transformation functions

// transformRequest transforms a gateway request to Anthropic format.
func transformRequest(req *domain.ChatRequest, mapping domain.ModelMapping) (*AnthropicRequest, error) {
	out := &AnthropicRequest{
		Model:         mapping.Target,
		Messages:      make([]AnthropicMessage, 0, len(req.Messages)),
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Extra:         mapping.Override,
	}
	if out.Model == "" {
		out.Model = req.Model
	}

	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}

	// Anthropic takes the system prompt as a separate field.
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			system = append(system, msg.Content)
		default:
			out.Messages = append(out.Messages, AnthropicMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	out.System = strings.Join(system, "\n\n")

	if err := validateMessageSequence(out.Messages); err != nil {
		return nil, err
	}

	return out, nil
}

// validateMessageSequence validates that messages alternate between user and assistant.
func validateMessageSequence(messages []AnthropicMessage) error {
	if len(messages) == 0 {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "at least one non-system message is required",
		}
	}

	if messages[0].Role != "user" {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "first message must be from user",
		}
	}

	for i := 1; i < len(messages); i++ {
		if messages[i-1].Role == messages[i].Role {
			return &providers.ValidationError{
				Field:   "messages",
				Message: fmt.Sprintf("messages must alternate between user and assistant, found consecutive %s messages at index %d", messages[i].Role, i),
			}
		}
	}

	return nil
}

// transformResponse transforms an Anthropic response to the gateway format.
func transformResponse(resp *AnthropicResponse) *domain.Response {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &domain.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      content.String(),
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// streamState tracks state across stream events.
type streamState struct {
	id          string
	model       string
	inputTokens int
}

// transformStreamEvent transforms an Anthropic stream event. The second
// return value is false for events that produce no chunk.
func transformStreamEvent(event *AnthropicStreamEvent, state *streamState) (domain.Chunk, bool, error) {
	switch event.Type {
	case "message_start":
		if event.Message != nil {
			state.id = event.Message.ID
			state.model = event.Message.Model
			state.inputTokens = event.Message.Usage.InputTokens
		}
		return domain.Chunk{}, false, nil

	case "content_block_delta":
		if event.Delta != nil && event.Delta.Text != "" {
			return domain.Chunk{ID: state.id, Model: state.model, Delta: event.Delta.Text}, true, nil
		}
		return domain.Chunk{}, false, nil

	case "message_delta":
		chunk := domain.Chunk{ID: state.id, Model: state.model}
		if event.Delta != nil {
			chunk.FinishReason = normalizeStopReason(event.Delta.StopReason)
		}
		if event.Usage != nil {
			chunk.Usage = &domain.Usage{
				PromptTokens:     state.inputTokens,
				CompletionTokens: event.Usage.OutputTokens,
				TotalTokens:      state.inputTokens + event.Usage.OutputTokens,
			}
		}
		return chunk, chunk.FinishReason != "" || chunk.Usage != nil, nil

	case "error":
		msg := "upstream reported an error"
		if event.Error != nil {
			msg = event.Error.Type + ": " + event.Error.Message
		}
		return domain.Chunk{}, false, errors.New(msg)

	case "content_block_start", "content_block_stop", "message_stop", "ping":
		return domain.Chunk{}, false, nil

	default:
		// New event types are ignored rather than failing the stream.
		return domain.Chunk{}, false, nil
	}
}

// normalizeStopReason normalizes Anthropic stop reasons.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "tool_use":
		return providers.FinishReasonToolCalls
	default:
		return reason
	}
}
