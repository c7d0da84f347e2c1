package costs

import (
	"maps"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"weaver-hq/loom/pkg/domain"
)

// DefaultProviderPrices are the per-1K prices used when neither the
// mapping nor the channel configures one.
var DefaultProviderPrices = map[domain.ProviderType]domain.Price{
	domain.ProviderOpenAI:    {Input: 0.01, Output: 0.03},
	domain.ProviderAzure:     {Input: 0.01, Output: 0.03},
	domain.ProviderAnthropic: {Input: 0.008, Output: 0.024},
	domain.ProviderGemini:    {Input: 0.0005, Output: 0.0015},
	domain.ProviderLocal:     {Input: 0, Output: 0},
	domain.ProviderCustom:    {Input: 0, Output: 0},
}

// precision is the number of decimal places kept in computed costs.
const precision = 8

var thousand = decimal.NewFromInt(1000)

// Calculator prices requests on channels. It is thread-safe and supports
// hot-reload of the provider defaults.
type Calculator struct {
	// defaults holds per-provider-type fallback prices
	defaults map[domain.ProviderType]domain.Price

	// mu protects the calculator for concurrent access
	mu sync.RWMutex
}

// NewCalculator creates a calculator. overrides replace entries of
// DefaultProviderPrices and may be nil.
func NewCalculator(overrides map[domain.ProviderType]domain.Price) *Calculator {
	c := &Calculator{}
	c.UpdateDefaults(overrides)
	return c
}

// Pricing resolves the per-1K prices for a mapping on a channel. The
// fallback chain is: mapping override, channel price for the model,
// channel default, provider-type default.
func (c *Calculator) Pricing(ch *domain.Channel, mapping domain.ModelMapping) (domain.Price, PriceSource) {
	if mapping.Price != nil {
		return *mapping.Price, SourceMapping
	}

	if p, ok := channelModelPrice(ch, mapping); ok {
		return p, SourceChannelModel
	}

	if ch.Pricing.Default != nil {
		return *ch.Pricing.Default, SourceChannelDefault
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults[ch.Type], SourceProviderDefault
}

// channelModelPrice looks up the channel's per-model table by target
// model, then client-facing model, then the longest target prefix (e.g.,
// "gpt-4" prices "gpt-4-0613").
func channelModelPrice(ch *domain.Channel, mapping domain.ModelMapping) (domain.Price, bool) {
	models := ch.Pricing.Models
	if len(models) == 0 {
		return domain.Price{}, false
	}
	if p, ok := models[mapping.Target]; ok {
		return p, true
	}
	if p, ok := models[mapping.Model]; ok {
		return p, true
	}

	var (
		best    domain.Price
		bestLen int
	)
	for pattern, p := range models {
		if len(pattern) > bestLen && strings.HasPrefix(mapping.Target, pattern) {
			best, bestLen = p, len(pattern)
		}
	}
	return best, bestLen > 0
}

// Calculate prices promptTokens and completionTokens on a channel.
func (c *Calculator) Calculate(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) CostEstimate {
	price, source := c.Pricing(ch, mapping)

	est := CostEstimate{
		PromptCost:     tokenCost(promptTokens, price.Input),
		CompletionCost: tokenCost(completionTokens, price.Output),
		Channel:        ch.ID,
		Model:          mapping.Target,
		Source:         source,
		Currency:       "USD",
	}
	est.TotalCost = est.PromptCost.Add(est.CompletionCost)
	return est
}

// Estimate returns the total cost as a float64. It lets the calculator
// order candidates for the lowest_cost strategy.
func (c *Calculator) Estimate(ch *domain.Channel, mapping domain.ModelMapping, promptTokens, completionTokens int) float64 {
	return c.Calculate(ch, mapping, promptTokens, completionTokens).Float()
}

// Cost prices actual usage.
func (c *Calculator) Cost(ch *domain.Channel, mapping domain.ModelMapping, usage domain.Usage) float64 {
	return c.Estimate(ch, mapping, usage.PromptTokens, usage.CompletionTokens)
}

// UpdateDefaults replaces the provider-type defaults (hot-reload support).
// This is thread-safe and can be called while the calculator is in use.
func (c *Calculator) UpdateDefaults(overrides map[domain.ProviderType]domain.Price) {
	defaults := maps.Clone(DefaultProviderPrices)
	for k, v := range overrides {
		defaults[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = defaults
}

// tokenCost calculates the cost for a given number of tokens.
// costPer1K is the cost per 1000 tokens in USD.
func tokenCost(tokens int, costPer1K float64) decimal.Decimal {
	if tokens <= 0 || costPer1K <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(tokens)).
		Mul(decimal.NewFromFloat(costPer1K)).
		Div(thousand).
		Round(precision)
}
