package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
	"weaver-hq/loom/pkg/providers/anthropic"
	"weaver-hq/loom/pkg/providers/gemini"
	"weaver-hq/loom/pkg/providers/openai"
)

// ErrUnsupportedType is returned for provider types without an adapter.
var ErrUnsupportedType = errors.New("unsupported provider type")

// NewAdapter creates the adapter for a provider type on top of a shared
// HTTP client.
//
// Supported provider types:
//   - "openai": OpenAI API
//   - "azure": Azure OpenAI deployments
//   - "anthropic": Anthropic Messages API
//   - "gemini": Google Gemini API
//   - "local", "custom": OpenAI-compatible APIs (Ollama, LM Studio, vLLM, etc.)
//
// Example:
//
//	client := providers.NewHTTPClient(providers.ClientConfig{})
//	adapter, err := NewAdapter(domain.ProviderAnthropic, client)
//	if err != nil {
//	    return err
//	}
func NewAdapter(kind domain.ProviderType, client *providers.HTTPClient) (providers.Adapter, error) {
	slog.Debug("creating adapter", "type", kind)

	switch kind {
	case domain.ProviderOpenAI, domain.ProviderAzure, domain.ProviderLocal, domain.ProviderCustom:
		adapter, err := openai.New(client, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s adapter: %w", kind, err)
		}
		return adapter, nil

	case domain.ProviderAnthropic:
		return anthropic.New(client), nil

	case domain.ProviderGemini:
		return gemini.New(client), nil

	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedType, kind, supportedList())
	}
}

// InferType infers the provider type from a channel name when the
// configuration omits it.
func InferType(name string) domain.ProviderType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "azure"):
		return domain.ProviderAzure
	case strings.Contains(n, "openai"):
		return domain.ProviderOpenAI
	case strings.Contains(n, "anthropic"), strings.Contains(n, "claude"):
		return domain.ProviderAnthropic
	case strings.Contains(n, "gemini"), strings.Contains(n, "google"):
		return domain.ProviderGemini
	case strings.Contains(n, "ollama"), strings.Contains(n, "lmstudio"),
		strings.Contains(n, "vllm"), strings.Contains(n, "localai"):
		return domain.ProviderLocal
	default:
		// Unknown names are assumed to speak the OpenAI wire format.
		return domain.ProviderCustom
	}
}

func supportedList() string {
	names := make([]string, len(domain.ProviderTypes))
	for i, t := range domain.ProviderTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
