package domain

import (
	"maps"
	"slices"
)

// ProviderType identifies the upstream API family a channel speaks.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAzure     ProviderType = "azure"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGemini    ProviderType = "gemini"
	ProviderLocal     ProviderType = "local"
	ProviderCustom    ProviderType = "custom"
)

// ProviderTypes lists every provider type the gateway understands.
var ProviderTypes = []ProviderType{
	ProviderOpenAI,
	ProviderAzure,
	ProviderAnthropic,
	ProviderGemini,
	ProviderLocal,
	ProviderCustom,
}

// Valid reports whether t is a known provider type.
func (t ProviderType) Valid() bool {
	return slices.Contains(ProviderTypes, t)
}

// ChannelStatus is the administrative status of a channel.
type ChannelStatus string

const (
	// StatusActive channels take part in selection and probing.
	StatusActive ChannelStatus = "active"

	// StatusInactive channels are manually disabled. They are neither
	// selected nor probed.
	StatusInactive ChannelStatus = "inactive"

	// StatusError channels were flagged by an operator or by configuration
	// loading. They are probed but never selected.
	StatusError ChannelStatus = "error"
)

// DefaultWeight is applied to channels configured without a weight.
const DefaultWeight = 100

// Wildcard in Channel.Models makes the channel accept any model name and
// forward it unchanged.
const Wildcard = "*"

// Price is a per-1K-token price pair in USD.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Pricing holds the prices configured on a channel. Lookups fall back from
// the per-model entry to Default.
type Pricing struct {
	Default *Price           `yaml:"default,omitempty" json:"default,omitempty"`
	Models  map[string]Price `yaml:"models,omitempty" json:"models,omitempty"`
}

// ModelMapping maps a model name requested by clients to the model name
// the provider expects.
type ModelMapping struct {
	// Model is the client-facing model name.
	Model string `yaml:"model" json:"model"`

	// Target is the provider-side model name (deployment name for Azure).
	Target string `yaml:"target" json:"target"`

	// Override is merged into the request parameters for this mapping,
	// for example a fixed temperature.
	Override map[string]any `yaml:"override,omitempty" json:"override,omitempty"`

	// Price overrides the channel pricing for this mapping.
	Price *Price `yaml:"price,omitempty" json:"price,omitempty"`

	// Disabled hides the mapping without deleting it.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Channel is a configured upstream provider connection.
type Channel struct {
	ID       string        `yaml:"id" json:"id"`
	Name     string        `yaml:"name" json:"name"`
	Type     ProviderType  `yaml:"type" json:"type"`
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	APIKey   string        `yaml:"api_key" json:"-"`
	Weight   int           `yaml:"weight" json:"weight"`
	Priority int           `yaml:"priority" json:"priority"`
	Status   ChannelStatus `yaml:"status" json:"status"`

	// Models lists model names served without renaming. Wildcard accepts
	// every model.
	Models []string `yaml:"models,omitempty" json:"models,omitempty"`

	// Mappings rename client-facing models to provider-side models.
	Mappings []ModelMapping `yaml:"mappings,omitempty" json:"mappings,omitempty"`

	Pricing Pricing `yaml:"pricing,omitempty" json:"pricing,omitempty"`

	// Config is an opaque, provider specific blob (api_version for Azure,
	// probe_path for custom endpoints, extra headers).
	Config map[string]string `yaml:"config,omitempty" json:"-"`
}

// Selectable reports whether the channel may ever be a selection
// candidate, independent of health.
func (c *Channel) Selectable() bool {
	return c.Status == StatusActive && c.Weight >= 1
}

// Resolve returns the mapping used to serve model on this channel. Enabled
// mappings take precedence over the direct model list. The second return
// value is false when the channel cannot serve model.
func (c *Channel) Resolve(model string) (ModelMapping, bool) {
	for _, m := range c.Mappings {
		if m.Model == model && !m.Disabled {
			if m.Target == "" {
				m.Target = model
			}
			return m, true
		}
	}
	for _, name := range c.Models {
		if name == model || name == Wildcard {
			return ModelMapping{Model: model, Target: model}, true
		}
	}
	return ModelMapping{}, false
}

// ServedModels returns the client-facing model names this channel serves,
// excluding the wildcard.
func (c *Channel) ServedModels() []string {
	var out []string
	for _, m := range c.Mappings {
		if !m.Disabled {
			out = append(out, m.Model)
		}
	}
	for _, name := range c.Models {
		if name != Wildcard {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ConfigValue returns a value from the opaque config blob.
func (c *Channel) ConfigValue(key string) string {
	if c.Config == nil {
		return ""
	}
	return c.Config[key]
}

// Clone returns a deep copy of the channel.
func (c Channel) Clone() Channel {
	out := c
	out.Models = slices.Clone(c.Models)
	out.Config = maps.Clone(c.Config)
	if c.Mappings != nil {
		out.Mappings = make([]ModelMapping, len(c.Mappings))
		for i, m := range c.Mappings {
			m.Override = cloneOverride(m.Override)
			if m.Price != nil {
				p := *m.Price
				m.Price = &p
			}
			out.Mappings[i] = m
		}
	}
	if c.Pricing.Default != nil {
		p := *c.Pricing.Default
		out.Pricing.Default = &p
	}
	out.Pricing.Models = maps.Clone(c.Pricing.Models)
	return out
}

// cloneOverride copies the nested maps and slices a YAML or JSON decoder
// produces. Scalars are shared.
func cloneOverride(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneOverride(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
