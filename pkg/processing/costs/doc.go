// Package costs prices LLM requests per channel.
//
// Prices are per 1K tokens, separately for input (prompt) and output
// (completion) tokens. A price is resolved through a fallback chain:
//
//  1. the price on the model mapping
//  2. the channel's per-model table (target, client-facing name, longest prefix)
//  3. the channel's default price
//  4. the provider-type default (DefaultProviderPrices)
//
// Arithmetic uses github.com/shopspring/decimal so that summing many
// small attempt costs into a budget window does not drift.
//
// # Usage
//
//	calc := costs.NewCalculator(nil)
//	est := calc.Calculate(ch, mapping, promptTokens, completionTokens)
//	fmt.Printf("cost: $%s (%s)\n", est.TotalCost, est.Source)
//
// Calculator implements the selector's cost estimator, which drives the
// lowest_cost strategy.
package costs
