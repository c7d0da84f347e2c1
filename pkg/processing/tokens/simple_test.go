package tokens

import (
	"strings"
	"sync"
	"testing"

	"weaver-hq/loom/pkg/domain"
)

func TestSimpleEstimator_EstimateText(t *testing.T) {
	estimator := NewSimpleEstimator(map[string]int{
		"gpt-4":       4,
		"gpt-4-turbo": 5,
		"broken":      0,
	})

	tests := []struct {
		name     string
		text     string
		model    string
		expected int
	}{
		{name: "empty text", text: "", model: "gpt-4", expected: 0},
		{name: "single char", text: "a", model: "", expected: 1},
		{name: "default ratio", text: "Hello, world!", model: "claude", expected: 13/3 + 1},
		{name: "exact model", text: "Hello, world!", model: "gpt-4", expected: 13/4 + 1},
		{name: "prefix match", text: "Hello, world!", model: "gpt-4-0613", expected: 13/4 + 1},
		{name: "longest prefix wins", text: "Hello, world!", model: "gpt-4-turbo-preview", expected: 13/5 + 1},
		{name: "non-positive ratio ignored", text: "Hello, world!", model: "broken", expected: 13/3 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimator.EstimateText(tt.text, tt.model); got != tt.expected {
				t.Errorf("EstimateText(%q, %q) = %d, want %d", tt.text, tt.model, got, tt.expected)
			}
		})
	}
}

func TestSimpleEstimator_EstimateRequest(t *testing.T) {
	estimator := NewSimpleEstimator(nil)

	req := &domain.ChatRequest{
		Model: "gpt-4o",
		Messages: []domain.Message{
			{Role: "system", Content: strings.Repeat("s", 30)},
			{Role: "user", Content: strings.Repeat("u", 60)},
		},
		MaxTokens: 500,
	}

	est := estimator.EstimateRequest(req)
	if est.PromptTokens != 90/3+1 {
		t.Errorf("PromptTokens = %d, want %d", est.PromptTokens, 90/3+1)
	}
	if est.CompletionTokens != 500 {
		t.Errorf("CompletionTokens = %d, want 500", est.CompletionTokens)
	}
	if est.Total() != 31+500 {
		t.Errorf("Total() = %d", est.Total())
	}

	if got := estimator.EstimateRequest(nil); got != (Estimate{}) {
		t.Errorf("EstimateRequest(nil) = %+v", got)
	}
}

func TestCount(t *testing.T) {
	if got := Count("abcdefghi"); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
	if got := Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
}

func TestSimpleEstimator_ConcurrentUpdate(t *testing.T) {
	estimator := NewSimpleEstimator(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = estimator.EstimateText("some text to estimate", "gpt-4")
		}()
		go func(i int) {
			defer wg.Done()
			estimator.UpdateRatios(map[string]int{"gpt-4": i%4 + 1})
		}(i)
	}
	wg.Wait()
}
