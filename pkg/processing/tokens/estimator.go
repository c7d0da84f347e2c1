package tokens

import "weaver-hq/loom/pkg/domain"

// Estimator estimates token counts for text and messages.
// Implementations may use different algorithms (character-based, BPE, tiktoken, etc.).
type Estimator interface {
	// EstimateText estimates tokens for a single text string. Empty text
	// is zero tokens.
	EstimateText(text, model string) int

	// EstimateMessages estimates prompt tokens for a list of messages.
	EstimateMessages(messages []domain.Message, model string) int

	// EstimateRequest estimates prompt and completion tokens for a
	// complete request.
	EstimateRequest(req *domain.ChatRequest) Estimate
}

// Estimate contains token estimation results.
type Estimate struct {
	// PromptTokens is the estimated number of tokens in the prompt.
	PromptTokens int

	// CompletionTokens is the client's max_tokens, or zero when unset.
	// Callers pricing a request substitute their own default.
	CompletionTokens int

	// Model is the model used for estimation.
	Model string
}

// Total returns prompt plus completion tokens.
func (e Estimate) Total() int {
	return e.PromptTokens + e.CompletionTokens
}
