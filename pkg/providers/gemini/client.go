package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

const (
	// DefaultBaseURL is used for channels configured without a base URL.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the path segment naming the API version.
	DefaultAPIVersion = "v1beta"

	// ConfigAPIVersion overrides DefaultAPIVersion per channel.
	ConfigAPIVersion = "api_version"
)

// Adapter speaks the Gemini generateContent API. The API key travels in
// the key query parameter.
type Adapter struct {
	client *providers.HTTPClient
}

// New creates a Gemini adapter.
func New(client *providers.HTTPClient) *Adapter {
	return &Adapter{client: client}
}

// Type implements providers.Adapter.
func (a *Adapter) Type() domain.ProviderType {
	return domain.ProviderGemini
}

// Complete implements providers.Adapter.
func (a *Adapter) Complete(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (*domain.Response, error) {
	body, err := transformRequest(req, mapping)
	if err != nil {
		return nil, err
	}
	target := targetModel(req, mapping)
	u, err := endpoint(ch, "models/"+target+":generateContent", nil)
	if err != nil {
		return nil, err
	}

	var raw GenerateResponse
	if err := a.client.DoJSON(ctx, ch.ID, http.MethodPost, u, body, &raw, jsonHeaders()); err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, target)
	}

	resp, err := transformResponse(&raw, target)
	if err != nil {
		return nil, &providers.ParseError{Channel: ch.ID, Cause: err}
	}
	return resp, nil
}

// Stream implements providers.Adapter.
func (a *Adapter) Stream(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (<-chan domain.Chunk, error) {
	body, err := transformRequest(req, mapping)
	if err != nil {
		return nil, err
	}
	target := targetModel(req, mapping)
	u, err := endpoint(ch, "models/"+target+":streamGenerateContent", url.Values{"alt": {"sse"}})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &providers.ValidationError{Field: "request", Message: err.Error()}
	}

	headers := jsonHeaders()
	headers["Accept"] = "text/event-stream"
	resp, err := a.client.Do(ctx, ch.ID, http.MethodPost, u, payload, headers)
	if err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, target)
	}

	out := make(chan domain.Chunk, providers.StreamBuffer)
	go pump(ctx, newStreamReader(ch.ID, target, resp.Body), out)
	return out, nil
}

// Probe implements providers.Adapter by listing models, which costs
// nothing and validates the key.
func (a *Adapter) Probe(ctx context.Context, ch *domain.Channel) error {
	u, err := endpoint(ch, "models", url.Values{"pageSize": {"1"}})
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, ch.ID, http.MethodGet, u, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func targetModel(req *domain.ChatRequest, mapping domain.ModelMapping) string {
	if mapping.Target != "" {
		return mapping.Target
	}
	return req.Model
}

// endpoint builds {base}/{version}/{path}?key=...&extra.
func endpoint(ch *domain.Channel, path string, extra url.Values) (string, error) {
	if ch.APIKey == "" {
		return "", &providers.ConfigError{
			Channel: ch.ID,
			Field:   "api_key",
			Message: "API key is required for Gemini",
		}
	}

	base := strings.TrimRight(ch.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	version := ch.ConfigValue(ConfigAPIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}

	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("key", ch.APIKey)
	return base + "/" + version + "/" + path + "?" + q.Encode(), nil
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}
