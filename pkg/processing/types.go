package processing

import (
	"weaver-hq/loom/pkg/processing/costs"
	"weaver-hq/loom/pkg/processing/tokens"
)

// Re-export types for convenience
type (
	CostEstimate  = costs.CostEstimate
	TokenEstimate = tokens.Estimate
)

// Settlement is the token and cost accounting of one completed attempt.
type Settlement struct {
	// PromptTokens is the upstream-reported or estimated prompt size.
	PromptTokens int

	// CompletionTokens is the upstream-reported or estimated completion size.
	CompletionTokens int

	// Cost is the attempt cost in USD.
	Cost float64

	// Estimated is true when the upstream did not report usage and the
	// counts come from the estimator.
	Estimated bool
}
