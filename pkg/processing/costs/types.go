package costs

import "github.com/shopspring/decimal"

// PriceSource names the level of the fallback chain a price came from.
type PriceSource string

const (
	SourceMapping         PriceSource = "mapping"
	SourceChannelModel    PriceSource = "channel_model"
	SourceChannelDefault  PriceSource = "channel_default"
	SourceProviderDefault PriceSource = "provider_default"
)

// CostEstimate contains cost calculations in USD.
// Costs are calculated based on channel pricing and token counts.
type CostEstimate struct {
	// PromptCost is the cost for prompt tokens in USD.
	PromptCost decimal.Decimal

	// CompletionCost is the cost for completion tokens in USD.
	CompletionCost decimal.Decimal

	// TotalCost is the total cost in USD.
	TotalCost decimal.Decimal

	// Channel is the channel the price applies to.
	Channel string

	// Model is the provider-side model used for pricing.
	Model string

	// Source identifies where the per-1K prices came from.
	Source PriceSource

	// Currency is the currency code (always "USD").
	Currency string
}

// Float returns TotalCost as a float64 for outcome records and metrics.
func (e CostEstimate) Float() float64 {
	return e.TotalCost.InexactFloat64()
}
