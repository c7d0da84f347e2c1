package channels

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providerfactory"
	"weaver-hq/loom/pkg/routing/strategies"
)

// Parse decodes and validates a channels file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse channels file: %w", err)
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Normalize fills defaults on every channel and validates the whole file.
// Channel IDs must be unique across tenants because health and statistics
// are keyed on them.
func (f *File) Normalize() error {
	verr := &ValidationError{}
	tenants := make(map[string]bool, len(f.Tenants))
	seen := make(map[string]string)

	for i := range f.Tenants {
		t := &f.Tenants[i]
		if t.ID == "" {
			verr.add(fmt.Sprintf("#%d", i), "", "id", "is required")
			continue
		}
		if tenants[t.ID] {
			verr.add(t.ID, "", "id", "duplicate tenant")
		}
		tenants[t.ID] = true

		if t.Strategy != "" {
			if _, err := strategies.Parse(t.Strategy); err != nil {
				verr.add(t.ID, "", "strategy", err.Error())
			}
		}

		for j := range t.Channels {
			ch := &t.Channels[j]
			normalizeChannel(ch)
			validateChannel(verr, t.ID, ch)
			if ch.ID == "" {
				continue
			}
			if owner, dup := seen[ch.ID]; dup {
				verr.add(t.ID, ch.ID, "id", fmt.Sprintf("duplicate channel id (also used by tenant %q)", owner))
			}
			seen[ch.ID] = t.ID
		}
	}
	return verr.orNil()
}

// normalizeChannel applies load-time defaults. API keys and base URLs may
// reference environment variables as ${NAME}. ${secret:name} references
// are left for ResolveSecrets.
func normalizeChannel(ch *domain.Channel) {
	ch.APIKey = os.Expand(ch.APIKey, expandEnv)
	ch.BaseURL = os.Expand(ch.BaseURL, expandEnv)
	if ch.Name == "" {
		ch.Name = ch.ID
	}
	if ch.Weight == 0 {
		ch.Weight = domain.DefaultWeight
	}
	if ch.Status == "" {
		ch.Status = domain.StatusActive
	}
	if ch.Type == "" {
		ch.Type = providerfactory.InferType(ch.Name)
	}
	for i := range ch.Mappings {
		if ch.Mappings[i].Target == "" {
			ch.Mappings[i].Target = ch.Mappings[i].Model
		}
	}
}

func expandEnv(name string) string {
	if strings.HasPrefix(name, "secret:") {
		return "${" + name + "}"
	}
	return os.Getenv(name)
}

func validateChannel(verr *ValidationError, tenant string, ch *domain.Channel) {
	if ch.ID == "" {
		verr.add(tenant, ch.Name, "id", "is required")
	}
	if !ch.Type.Valid() {
		verr.add(tenant, ch.ID, "type", fmt.Sprintf("unknown provider type %q", ch.Type))
	}
	if ch.Weight < 0 {
		verr.add(tenant, ch.ID, "weight", "must be positive")
	}
	switch ch.Status {
	case domain.StatusActive, domain.StatusInactive, domain.StatusError:
	default:
		verr.add(tenant, ch.ID, "status", fmt.Sprintf("unknown status %q", ch.Status))
	}
	if len(ch.Models) == 0 && len(ch.Mappings) == 0 {
		verr.add(tenant, ch.ID, "models", "channel serves no model")
	}

	mapped := make(map[string]bool, len(ch.Mappings))
	for _, m := range ch.Mappings {
		if m.Model == "" {
			verr.add(tenant, ch.ID, "mappings", "mapping without model")
			continue
		}
		if mapped[m.Model] {
			verr.add(tenant, ch.ID, "mappings", fmt.Sprintf("duplicate mapping for model %q", m.Model))
		}
		mapped[m.Model] = true
	}

	checkPrice := func(field string, p domain.Price) {
		if p.Input < 0 || p.Output < 0 {
			verr.add(tenant, ch.ID, field, "prices must not be negative")
		}
	}
	if ch.Pricing.Default != nil {
		checkPrice("pricing.default", *ch.Pricing.Default)
	}
	for model, p := range ch.Pricing.Models {
		checkPrice("pricing.models."+model, p)
	}
}
