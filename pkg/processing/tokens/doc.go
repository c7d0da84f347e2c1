// Package tokens provides token estimation for routing and accounting.
//
// The gateway never tokenizes exactly. It estimates prompts before
// selection (cost ordering, budget checks) and streamed deltas while
// relaying, using a character-based rule:
//
//	tokens = len(text)/charsPerToken + 1   (0 for empty text)
//
// charsPerToken defaults to 3 and may be overridden per model or model
// prefix. Upstream usage reports, when present, take precedence over
// these estimates.
//
// # Usage
//
//	est := tokens.NewSimpleEstimator(cfg.Routing.TokenRatios)
//	n := est.EstimateRequest(req).PromptTokens
package tokens
