package tokens

import (
	"strings"
	"sync"

	"weaver-hq/loom/pkg/domain"
)

// DefaultCharsPerToken is the ratio applied to models without an override.
// It is deliberately conservative for mixed-language text.
const DefaultCharsPerToken = 3

// SimpleEstimator implements character-based token estimation:
// len(text)/charsPerToken + 1 for non-empty text. It is fast enough to
// run on every streamed delta.
type SimpleEstimator struct {
	// ratios maps a model name or prefix to characters per token
	ratios map[string]int

	// mu protects the estimator for concurrent access
	mu sync.RWMutex
}

// NewSimpleEstimator creates an estimator. ratios may be nil; entries with
// a non-positive ratio are ignored.
func NewSimpleEstimator(ratios map[string]int) *SimpleEstimator {
	e := &SimpleEstimator{}
	e.UpdateRatios(ratios)
	return e
}

// EstimateText implements Estimator.
func (e *SimpleEstimator) EstimateText(text, model string) int {
	if text == "" {
		return 0
	}
	return len(text)/e.charsPerToken(model) + 1
}

// EstimateMessages implements Estimator. Message contents are estimated as
// one text, matching how the gateway prices prompts.
func (e *SimpleEstimator) EstimateMessages(messages []domain.Message, model string) int {
	if len(messages) == 0 {
		return 0
	}

	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.Content)
	}
	return len(b.String())/e.charsPerToken(model) + 1
}

// EstimateRequest implements Estimator.
func (e *SimpleEstimator) EstimateRequest(req *domain.ChatRequest) Estimate {
	if req == nil {
		return Estimate{}
	}
	return Estimate{
		PromptTokens:     e.EstimateMessages(req.Messages, req.Model),
		CompletionTokens: req.MaxTokens,
		Model:            req.Model,
	}
}

// UpdateRatios replaces the per-model ratios (hot-reload support).
func (e *SimpleEstimator) UpdateRatios(ratios map[string]int) {
	clean := make(map[string]int, len(ratios))
	for k, v := range ratios {
		if v > 0 {
			clean[k] = v
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ratios = clean
}

// charsPerToken returns the ratio for a model: exact match, then the
// longest matching prefix (e.g., "gpt-4" matches "gpt-4-0613"), then the
// default.
func (e *SimpleEstimator) charsPerToken(model string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ratio, ok := e.ratios[model]; ok {
		return ratio
	}

	best, bestLen := DefaultCharsPerToken, 0
	for pattern, ratio := range e.ratios {
		if len(pattern) > bestLen && strings.HasPrefix(model, pattern) {
			best, bestLen = ratio, len(pattern)
		}
	}
	return best
}

// Default is the shared estimator with default ratios.
var Default = NewSimpleEstimator(nil)

// Count estimates text with the default ratio. It is the estimate applied
// to prompts and streamed deltas throughout the gateway.
func Count(text string) int {
	return Default.EstimateText(text, "")
}
