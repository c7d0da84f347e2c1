package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

const (
	// DefaultBaseURL is used for channels configured without a base URL.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicVersion is the API version to use
	DefaultAnthropicVersion = "2023-06-01"

	// DefaultProbeModel is the model named in probe requests when the
	// channel does not set config.probe_model.
	DefaultProbeModel = "claude-3-haiku-20240307"

	// Channel config keys understood by this adapter.
	ConfigVersion    = "anthropic_version"
	ConfigProbeModel = "probe_model"
)

// Adapter speaks Anthropic's Messages API.
type Adapter struct {
	client *providers.HTTPClient
}

// New creates an Anthropic adapter.
func New(client *providers.HTTPClient) *Adapter {
	return &Adapter{client: client}
}

// Type implements providers.Adapter.
func (a *Adapter) Type() domain.ProviderType {
	return domain.ProviderAnthropic
}

// Complete implements providers.Adapter.
func (a *Adapter) Complete(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (*domain.Response, error) {
	body, err := transformRequest(req, mapping)
	if err != nil {
		return nil, err
	}
	headers, err := a.headers(ch, false)
	if err != nil {
		return nil, err
	}

	var raw AnthropicResponse
	if err := a.client.DoJSON(ctx, ch.ID, http.MethodPost, messagesURL(ch), body, &raw, headers); err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, body.Model)
	}
	if raw.Type != "" && raw.Type != "message" {
		return nil, &providers.ParseError{Channel: ch.ID, Cause: errors.New("unexpected response type " + raw.Type)}
	}

	return transformResponse(&raw), nil
}

// Stream implements providers.Adapter.
func (a *Adapter) Stream(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (<-chan domain.Chunk, error) {
	body, err := transformRequest(req, mapping)
	if err != nil {
		return nil, err
	}
	body.Stream = true
	headers, err := a.headers(ch, true)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &providers.ValidationError{Field: "request", Message: err.Error()}
	}

	resp, err := a.client.Do(ctx, ch.ID, http.MethodPost, messagesURL(ch), payload, headers)
	if err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, body.Model)
	}

	out := make(chan domain.Chunk, providers.StreamBuffer)
	go pump(ctx, newStreamReader(ch.ID, resp.Body), out)
	return out, nil
}

// Probe implements providers.Adapter. Anthropic has no free endpoint, so
// the probe sends a one-token message. Any answer that proves the API is
// up and accepted the key counts as reachable, including 400 (for example
// an unknown probe model) and 429.
func (a *Adapter) Probe(ctx context.Context, ch *domain.Channel) error {
	headers, err := a.headers(ch, false)
	if err != nil {
		return err
	}

	model := ch.ConfigValue(ConfigProbeModel)
	if model == "" {
		model = DefaultProbeModel
	}
	body := AnthropicRequest{
		Model:     model,
		Messages:  []AnthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(ctx, ch.ID, http.MethodPost, messagesURL(ch), payload, headers)
	if err == nil {
		resp.Body.Close()
		return nil
	}

	var rateErr *providers.RateLimitError
	if errors.As(err, &rateErr) {
		return nil
	}
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode == http.StatusBadRequest {
		return nil
	}
	return err
}

func (a *Adapter) headers(ch *domain.Channel, stream bool) (map[string]string, error) {
	if ch.APIKey == "" {
		return nil, &providers.ConfigError{
			Channel: ch.ID,
			Field:   "api_key",
			Message: "API key is required for Anthropic",
		}
	}

	version := ch.ConfigValue(ConfigVersion)
	if version == "" {
		version = DefaultAnthropicVersion
	}
	headers := map[string]string{
		"x-api-key":         ch.APIKey,
		"anthropic-version": version,
		"Content-Type":      "application/json",
	}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return headers, nil
}

func messagesURL(ch *domain.Channel) string {
	base := strings.TrimRight(ch.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/v1/messages"
}
