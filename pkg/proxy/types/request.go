package types

import (
	"strings"

	"weaver-hq/loom/pkg/domain"
)

// ChatCompletionRequest is an OpenAI-compatible chat completion request.
// Validation rules are expressed as validator tags and checked by the
// proxy before routing.
type ChatCompletionRequest struct {
	// Model is the client-facing model name, e.g. "gpt-4o".
	Model string `json:"model" validate:"required,max=256"`

	// Messages is the conversation history.
	Messages []Message `json:"messages" validate:"required,min=1,dive"`

	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gte=1"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	N           *int     `json:"n,omitempty" validate:"omitempty,eq=1"`

	// Stream selects a server-sent event response.
	Stream bool `json:"stream,omitempty"`

	Stop []string `json:"stop,omitempty" validate:"max=4"`

	PresencePenalty  *float64 `json:"presence_penalty,omitempty" validate:"omitempty,gte=-2,lte=2"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" validate:"omitempty,gte=-2,lte=2"`

	// User identifies the end user. It doubles as the cache affinity key
	// when no session header is sent.
	User string `json:"user,omitempty" validate:"max=256"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Seed           *int            `json:"seed,omitempty"`
}

// Message is one conversation turn. Content is either a string or an
// array of content parts; only text parts are forwarded.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool developer"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ResponseFormat selects plain text or JSON mode.
type ResponseFormat struct {
	Type string `json:"type" validate:"oneof=text json_object json_schema"`
}

// ToDomain converts the request into the routing payload. Parameters
// without a dedicated field travel in Params.
func (r *ChatCompletionRequest) ToDomain() *domain.ChatRequest {
	req := &domain.ChatRequest{
		Model:       r.Model,
		Messages:    make([]domain.Message, 0, len(r.Messages)),
		Stream:      r.Stream,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stop:        r.Stop,
		User:        r.User,
	}
	if r.MaxTokens != nil {
		req.MaxTokens = *r.MaxTokens
	}
	for _, m := range r.Messages {
		req.Messages = append(req.Messages, domain.Message{
			Role:    m.Role,
			Content: MessageText(m.Content),
			Name:    m.Name,
		})
	}

	params := map[string]any{}
	if r.PresencePenalty != nil {
		params["presence_penalty"] = *r.PresencePenalty
	}
	if r.FrequencyPenalty != nil {
		params["frequency_penalty"] = *r.FrequencyPenalty
	}
	if r.Seed != nil {
		params["seed"] = *r.Seed
	}
	if r.ResponseFormat != nil {
		params["response_format"] = map[string]any{"type": r.ResponseFormat.Type}
	}
	if len(params) > 0 {
		req.Params = params
	}
	return req
}

// MessageText flattens message content to text. String content is
// returned as is; for content part arrays the text parts are joined with
// a space and other parts are dropped.
func MessageText(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var parts []string
		for _, p := range c {
			part, ok := p.(map[string]any)
			if !ok || part["type"] != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
