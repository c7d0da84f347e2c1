package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

const (
	// DefaultBaseURL is used for openai channels configured without a base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultAzureAPIVersion is the api-version query parameter sent to
	// Azure when the channel does not set config.api_version.
	DefaultAzureAPIVersion = "2024-02-01"

	// DefaultProbePath is the path probed on OpenAI-compatible upstreams.
	DefaultProbePath = "/models"

	// Channel config keys understood by this adapter.
	ConfigAPIVersion   = "api_version"
	ConfigProbePath    = "probe_path"
	ConfigOrganization = "organization"

	// ConfigHeaderPrefix marks config keys that are sent as extra request
	// headers, e.g. "header.X-Tenant".
	ConfigHeaderPrefix = "header."
)

// Adapter speaks the OpenAI chat completions API. It serves the openai,
// azure, local and custom provider types, which differ only in URL layout
// and authentication.
type Adapter struct {
	client *providers.HTTPClient
	kind   domain.ProviderType
}

// New creates an adapter for one of the OpenAI-compatible provider types.
func New(client *providers.HTTPClient, kind domain.ProviderType) (*Adapter, error) {
	switch kind {
	case domain.ProviderOpenAI, domain.ProviderAzure, domain.ProviderLocal, domain.ProviderCustom:
	default:
		return nil, fmt.Errorf("openai adapter does not support provider type %q", kind)
	}
	return &Adapter{client: client, kind: kind}, nil
}

// Type implements providers.Adapter.
func (a *Adapter) Type() domain.ProviderType {
	return a.kind
}

// Complete implements providers.Adapter.
func (a *Adapter) Complete(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (*domain.Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := a.chatURL(ch, mapping)
	if err != nil {
		return nil, err
	}
	body := transformRequest(req, mapping)

	var raw OpenAIResponse
	if err := a.client.DoJSON(ctx, ch.ID, http.MethodPost, endpoint, body, &raw, a.headers(ch, false)); err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, body.Model)
	}

	resp, err := transformResponse(&raw)
	if err != nil {
		return nil, &providers.ParseError{Channel: ch.ID, Cause: err}
	}
	return resp, nil
}

// Stream implements providers.Adapter.
func (a *Adapter) Stream(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (<-chan domain.Chunk, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	endpoint, err := a.chatURL(ch, mapping)
	if err != nil {
		return nil, err
	}
	body := transformRequest(req, mapping)
	body.Stream = true
	if a.kind == domain.ProviderOpenAI {
		body.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &providers.ValidationError{Field: "request", Message: err.Error()}
	}

	resp, err := a.client.Do(ctx, ch.ID, http.MethodPost, endpoint, payload, a.headers(ch, true))
	if err != nil {
		return nil, providers.NotFoundAsModel(err, ch.ID, body.Model)
	}

	out := make(chan domain.Chunk, providers.StreamBuffer)
	go pump(ctx, newStreamReader(ch.ID, resp.Body), out)
	return out, nil
}

// Probe implements providers.Adapter. It lists models, which every
// OpenAI-compatible server answers cheaply.
func (a *Adapter) Probe(ctx context.Context, ch *domain.Channel) error {
	endpoint, err := a.probeURL(ch)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, ch.ID, http.MethodGet, endpoint, nil, a.headers(ch, false))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (a *Adapter) baseURL(ch *domain.Channel) (string, error) {
	base := strings.TrimRight(ch.BaseURL, "/")
	if base == "" {
		if a.kind != domain.ProviderOpenAI {
			return "", &providers.ConfigError{Channel: ch.ID, Field: "base_url", Message: "base URL is required"}
		}
		base = DefaultBaseURL
	}
	return base, nil
}

func (a *Adapter) chatURL(ch *domain.Channel, mapping domain.ModelMapping) (string, error) {
	base, err := a.baseURL(ch)
	if err != nil {
		return "", err
	}
	if a.kind != domain.ProviderAzure {
		return base + "/chat/completions", nil
	}

	// Azure addresses the deployment, which is the mapped model name.
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(mapping.Target), url.QueryEscape(apiVersion(ch))), nil
}

func (a *Adapter) probeURL(ch *domain.Channel) (string, error) {
	base, err := a.baseURL(ch)
	if err != nil {
		return "", err
	}
	if a.kind == domain.ProviderAzure {
		return fmt.Sprintf("%s/openai/models?api-version=%s", base, url.QueryEscape(apiVersion(ch))), nil
	}

	path := ch.ConfigValue(ConfigProbePath)
	if path == "" {
		path = DefaultProbePath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path, nil
}

func (a *Adapter) headers(ch *domain.Channel, stream bool) map[string]string {
	headers := map[string]string{}
	if ch.APIKey != "" {
		if a.kind == domain.ProviderAzure {
			headers["api-key"] = ch.APIKey
		} else {
			headers["Authorization"] = "Bearer " + ch.APIKey
		}
	}
	if org := ch.ConfigValue(ConfigOrganization); org != "" {
		headers["OpenAI-Organization"] = org
	}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	for k, v := range ch.Config {
		if name, ok := strings.CutPrefix(k, ConfigHeaderPrefix); ok && name != "" {
			headers[name] = v
		}
	}
	return headers
}

func apiVersion(ch *domain.Channel) string {
	if v := ch.ConfigValue(ConfigAPIVersion); v != "" {
		return v
	}
	return DefaultAzureAPIVersion
}

// validateRequest validates the completion request.
func validateRequest(req *domain.ChatRequest) error {
	if req == nil {
		return &providers.ValidationError{
			Field:   "request",
			Message: "request cannot be nil",
		}
	}

	if len(req.Messages) == 0 {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "at least one message is required",
		}
	}

	return nil
}
