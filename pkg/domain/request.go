package domain

import (
	"slices"
	"time"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant tool developer"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is the OpenAI-shaped payload carried through the core. The
// core treats it as opaque; only adapters look inside.
type ChatRequest struct {
	Model       string    `json:"model" validate:"required"`
	Messages    []Message `json:"messages" validate:"required,min=1,dive"`
	Stream      bool      `json:"stream,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty" validate:"gte=0"`
	Temperature *float64  `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP        *float64  `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`

	// Params carries mapping overrides and any extra parameters that are
	// forwarded verbatim to OpenAI-compatible upstreams.
	Params map[string]any `json:"-"`
}

// Text concatenates all message contents. Used for token estimation.
func (r *ChatRequest) Text() string {
	n := 0
	for _, m := range r.Messages {
		n += len(m.Content)
	}
	buf := make([]byte, 0, n)
	for _, m := range r.Messages {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}

// RequestContext carries what the core needs to route one inbound call.
type RequestContext struct {
	// RequestID is unique per inbound call and keys the idempotent budget
	// commit.
	RequestID string

	// TenantID identifies the tenant whose channels are eligible.
	TenantID string

	// APIKeyID identifies the inbound credential, for accounting only.
	APIKeyID string

	// Model is the client-facing model name.
	Model string

	// Stream requests incremental delivery.
	Stream bool

	// Deadline bounds the whole request including failover. Zero means the
	// gateway default applies.
	Deadline time.Time

	// AllowedModels restricts which models the tenant may call. Empty means
	// unrestricted.
	AllowedModels []string

	// AffinityKey groups requests that should prefer the same channel
	// (user or session identifier). Empty disables cache affinity for the
	// request.
	AffinityKey string

	// PreferredChannel pins the request to one channel, chosen by the
	// tenant's configuration or the caller. Empty leaves selection to the
	// strategy.
	PreferredChannel string

	// PromptTokens is the estimated prompt size used for cost ordering and
	// budget checks.
	PromptTokens int

	// Payload is the request body.
	Payload *ChatRequest
}

// Allows reports whether the tenant restriction set permits model.
func (r *RequestContext) Allows(model string) bool {
	if len(r.AllowedModels) == 0 {
		return true
	}
	return slices.Contains(r.AllowedModels, model)
}

// MaxTokens returns the completion token ceiling requested by the client.
func (r *RequestContext) MaxTokens() int {
	if r.Payload == nil {
		return 0
	}
	return r.Payload.MaxTokens
}

// Remaining returns the time left before the deadline. It returns a
// negative duration once the deadline has passed and the maximum duration
// when no deadline is set.
func (r *RequestContext) Remaining(now time.Time) time.Duration {
	if r.Deadline.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return r.Deadline.Sub(now)
}
