package processing

import (
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/processing/costs"
	"weaver-hq/loom/pkg/processing/tokens"
)

// Processor combines token estimation and pricing into the accounting the
// gateway performs around each request. It is thread-safe and can process
// multiple requests concurrently.
type Processor struct {
	tokenEstimator tokens.Estimator
	costCalculator *costs.Calculator
}

// NewProcessor creates a processor. Nil arguments select the defaults.
func NewProcessor(estimator tokens.Estimator, calculator *costs.Calculator) *Processor {
	if estimator == nil {
		estimator = tokens.Default
	}
	if calculator == nil {
		calculator = costs.NewCalculator(nil)
	}
	return &Processor{
		tokenEstimator: estimator,
		costCalculator: calculator,
	}
}

// PrepareRequest fills in the request's prompt estimate when the caller
// has not already done so, and returns the full estimate.
func (p *Processor) PrepareRequest(rc *domain.RequestContext) TokenEstimate {
	est := p.tokenEstimator.EstimateRequest(rc.Payload)
	if rc.PromptTokens == 0 {
		rc.PromptTokens = est.PromptTokens
	} else {
		est.PromptTokens = rc.PromptTokens
	}
	return est
}

// CountTokens estimates the tokens of a piece of text, typically a
// streamed delta.
func (p *Processor) CountTokens(model, text string) int {
	return p.tokenEstimator.EstimateText(text, model)
}

// Estimate prices a token profile on a channel. Processor thereby serves
// as the selector's cost estimator.
func (p *Processor) Estimate(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) float64 {
	return p.costCalculator.Estimate(ch, mapping, promptTokens, completionTokens)
}

// Cost prices actual token counts on a channel.
func (p *Processor) Cost(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) float64 {
	return p.costCalculator.Estimate(ch, mapping, promptTokens, completionTokens)
}

// Settle accounts a non-streamed response. Upstream usage is authoritative
// when reported; otherwise the prompt estimate and an estimate of the
// response content are used.
func (p *Processor) Settle(rc *domain.RequestContext, ch *domain.Channel, mapping domain.ModelMapping, resp *domain.Response) Settlement {
	var s Settlement
	if resp != nil && (resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0) {
		s.PromptTokens = resp.Usage.PromptTokens
		s.CompletionTokens = resp.Usage.CompletionTokens
	} else {
		s.Estimated = true
		s.PromptTokens = rc.PromptTokens
		if resp != nil {
			s.CompletionTokens = p.CountTokens(mapping.Target, resp.Content)
		}
	}
	s.Cost = p.Cost(ch, mapping, s.PromptTokens, s.CompletionTokens)
	return s
}

// Calculator exposes the underlying cost calculator.
func (p *Processor) Calculator() *costs.Calculator {
	return p.costCalculator
}
