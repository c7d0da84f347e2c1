package domain

import (
	"testing"
	"time"
)

func TestChannel_Resolve(t *testing.T) {
	ch := Channel{
		ID:     "c1",
		Models: []string{"gpt-4o-mini"},
		Mappings: []ModelMapping{
			{Model: "gpt-4o", Target: "prod-gpt4o"},
			{Model: "legacy", Target: "old", Disabled: true},
			{Model: "plain"},
		},
	}

	tests := []struct {
		name       string
		model      string
		wantOK     bool
		wantTarget string
	}{
		{name: "mapping", model: "gpt-4o", wantOK: true, wantTarget: "prod-gpt4o"},
		{name: "direct model", model: "gpt-4o-mini", wantOK: true, wantTarget: "gpt-4o-mini"},
		{name: "disabled mapping", model: "legacy", wantOK: false},
		{name: "mapping without target", model: "plain", wantOK: true, wantTarget: "plain"},
		{name: "unknown", model: "claude", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := ch.Resolve(tt.model)
			if ok != tt.wantOK {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.model, ok, tt.wantOK)
			}
			if ok && m.Target != tt.wantTarget {
				t.Errorf("Resolve(%q) target = %q, want %q", tt.model, m.Target, tt.wantTarget)
			}
		})
	}
}

func TestChannel_ResolveWildcard(t *testing.T) {
	ch := Channel{Models: []string{Wildcard}}
	m, ok := ch.Resolve("llama3")
	if !ok || m.Target != "llama3" {
		t.Fatalf("Resolve() = %+v, %v; want passthrough", m, ok)
	}
	if got := ch.ServedModels(); len(got) != 0 {
		t.Errorf("ServedModels() = %v, want empty", got)
	}
}

func TestChannel_Selectable(t *testing.T) {
	tests := []struct {
		name string
		ch   Channel
		want bool
	}{
		{name: "active", ch: Channel{Status: StatusActive, Weight: 1}, want: true},
		{name: "inactive", ch: Channel{Status: StatusInactive, Weight: 10}, want: false},
		{name: "error", ch: Channel{Status: StatusError, Weight: 10}, want: false},
		{name: "zero weight", ch: Channel{Status: StatusActive, Weight: 0}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ch.Selectable(); got != tt.want {
				t.Errorf("Selectable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSnapshot_DeepCopy(t *testing.T) {
	src := []Channel{{
		ID:       "c1",
		Status:   StatusActive,
		Weight:   1,
		Models:   []string{"a"},
		Mappings: []ModelMapping{{Model: "b", Target: "bb", Override: map[string]any{"temperature": 0.1}}},
		Pricing:  Pricing{Default: &Price{Input: 1, Output: 2}},
	}}

	snap := NewSnapshot("t1", src, time.Now())

	src[0].Models[0] = "changed"
	src[0].Mappings[0].Target = "changed"
	src[0].Mappings[0].Override["temperature"] = 1.5
	src[0].Pricing.Default.Input = 99

	ch, ok := snap.Channel("c1")
	if !ok {
		t.Fatal("Channel(c1) not found")
	}
	if ch.Models[0] != "a" {
		t.Errorf("Models leaked edit: %v", ch.Models)
	}
	if ch.Mappings[0].Target != "bb" {
		t.Errorf("Mappings leaked edit: %v", ch.Mappings)
	}
	if ch.Mappings[0].Override["temperature"] != 0.1 {
		t.Errorf("Override leaked edit: %v", ch.Mappings[0].Override)
	}
	if ch.Pricing.Default.Input != 1 {
		t.Errorf("Pricing leaked edit: %v", ch.Pricing.Default)
	}
}

func TestChannel_CloneNestedOverride(t *testing.T) {
	src := Channel{
		ID: "c1",
		Mappings: []ModelMapping{{
			Model:  "b",
			Target: "bb",
			Override: map[string]any{
				"response_format": map[string]any{"type": "json_object"},
				"stop":            []any{"END", map[string]any{"seq": "x"}},
			},
		}},
		Config: map[string]string{"api_version": "2024-06-01"},
	}

	clone := src.Clone()

	src.Mappings[0].Override["response_format"].(map[string]any)["type"] = "text"
	stop := src.Mappings[0].Override["stop"].([]any)
	stop[0] = "STOP"
	stop[1].(map[string]any)["seq"] = "y"
	src.Config["api_version"] = "changed"

	override := clone.Mappings[0].Override
	if got := override["response_format"].(map[string]any)["type"]; got != "json_object" {
		t.Errorf("nested map leaked edit: type = %v", got)
	}
	cloned := override["stop"].([]any)
	if cloned[0] != "END" {
		t.Errorf("nested slice leaked edit: %v", cloned)
	}
	if got := cloned[1].(map[string]any)["seq"]; got != "x" {
		t.Errorf("map inside slice leaked edit: seq = %v", got)
	}
	if clone.Config["api_version"] != "2024-06-01" {
		t.Errorf("Config leaked edit: %v", clone.Config)
	}
}

func TestSnapshot_Models(t *testing.T) {
	snap := NewSnapshot("t1", []Channel{
		{ID: "a", Status: StatusActive, Weight: 1, Models: []string{"m1", "m2"}},
		{ID: "b", Status: StatusActive, Weight: 1, Mappings: []ModelMapping{{Model: "m2", Target: "x"}, {Model: "m3"}}},
		{ID: "c", Status: StatusInactive, Weight: 1, Models: []string{"m9"}},
	}, time.Now())

	got := snap.Models()
	want := []string{"m1", "m2", "m3"}
	if len(got) != len(want) {
		t.Fatalf("Models() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Models()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRequestContext_Allows(t *testing.T) {
	rc := &RequestContext{}
	if !rc.Allows("anything") {
		t.Error("empty restriction set should allow every model")
	}
	rc.AllowedModels = []string{"gpt-4o"}
	if !rc.Allows("gpt-4o") || rc.Allows("gpt-4") {
		t.Error("restriction set not honored")
	}
}

func TestOutcome_CountsAgainstHealth(t *testing.T) {
	if (Outcome{Kind: OutcomeCanceled}).CountsAgainstHealth() {
		t.Error("caller cancellation must not count against health")
	}
	if !(Outcome{Kind: OutcomeTransient}).CountsAgainstHealth() {
		t.Error("transient failure must count against health")
	}
}
