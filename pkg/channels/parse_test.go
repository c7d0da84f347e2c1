package channels

import (
	"errors"
	"strings"
	"testing"

	"weaver-hq/loom/pkg/domain"
)

const validFile = `
tenants:
  - id: acme
    strategy: lowest_cost
    channels:
      - id: openai-primary
        type: openai
        api_key: sk-test
        priority: 10
        models: [gpt-4o, gpt-4o-mini]
      - id: claude-backup
        api_key: ${LOOM_TEST_ANTHROPIC_KEY}
        mappings:
          - model: gpt-4o
            target: claude-3-5-sonnet
          - model: fast
  - id: globex
    channels:
      - id: local-llama
        name: ollama box
        base_url: http://localhost:11434/v1
        weight: 5
        status: inactive
        models: ["*"]
`

func TestParse(t *testing.T) {
	t.Setenv("LOOM_TEST_ANTHROPIC_KEY", "sk-ant-test")

	f, err := Parse([]byte(validFile))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Tenants) != 2 {
		t.Fatalf("tenants = %d, want 2", len(f.Tenants))
	}

	acme := f.Tenants[0]
	if acme.Strategy != "lowest_cost" || len(acme.Channels) != 2 {
		t.Errorf("acme = %+v", acme)
	}

	primary := acme.Channels[0]
	if primary.Weight != domain.DefaultWeight || primary.Status != domain.StatusActive || primary.Name != "openai-primary" {
		t.Errorf("defaults not applied: %+v", primary)
	}

	backup := acme.Channels[1]
	if backup.APIKey != "sk-ant-test" {
		t.Errorf("api key = %q, want expanded env", backup.APIKey)
	}
	if backup.Type != domain.ProviderAnthropic {
		t.Errorf("type = %q, want inferred anthropic", backup.Type)
	}
	if backup.Mappings[1].Target != "fast" {
		t.Errorf("mapping target = %q, want model name", backup.Mappings[1].Target)
	}

	local := f.Tenants[1].Channels[0]
	if local.Type != domain.ProviderLocal || local.Weight != 5 || local.Status != domain.StatusInactive {
		t.Errorf("local = %+v", local)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "unknown field",
			yaml:    "tenants:\n  - id: a\n    chanels: []\n",
			wantMsg: "chanels",
		},
		{
			name:    "missing tenant id",
			yaml:    "tenants:\n  - channels: []\n",
			wantMsg: "id: is required",
		},
		{
			name:    "bad strategy",
			yaml:    "tenants:\n  - id: a\n    strategy: fastest\n",
			wantMsg: "strategy",
		},
		{
			name:    "bad type",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - id: c\n        type: bedrock\n        models: [m]\n",
			wantMsg: "unknown provider type",
		},
		{
			name:    "negative weight",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - id: c\n        type: openai\n        weight: -1\n        models: [m]\n",
			wantMsg: "weight",
		},
		{
			name:    "bad status",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - id: c\n        type: openai\n        status: paused\n        models: [m]\n",
			wantMsg: "unknown status",
		},
		{
			name:    "no models",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - id: c\n        type: openai\n",
			wantMsg: "serves no model",
		},
		{
			name:    "duplicate channel across tenants",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - {id: c, type: openai, models: [m]}\n  - id: b\n    channels:\n      - {id: c, type: openai, models: [m]}\n",
			wantMsg: "duplicate channel id",
		},
		{
			name:    "negative price",
			yaml:    "tenants:\n  - id: a\n    channels:\n      - id: c\n        type: openai\n        models: [m]\n        pricing:\n          default: {input: -1, output: 0}\n",
			wantMsg: "prices must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_CollectsAllErrors(t *testing.T) {
	_, err := Parse([]byte("tenants:\n  - id: a\n    channels:\n      - id: c\n        type: bogus\n        status: paused\n"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("errors = %d, want 3: %v", len(verr.Errors), verr)
	}
	if !errors.Is(err, ErrInvalidChannels) {
		t.Error("validation errors should match ErrInvalidChannels")
	}
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if len(f.Tenants) != 0 {
		t.Errorf("tenants = %d", len(f.Tenants))
	}
}
