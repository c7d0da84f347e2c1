// Package strategies implements the load-balancing strategies that order the
// candidates of one priority tier.
//
// A strategy is selected by Kind from configuration and resolved once per
// tenant with New. All strategies permute a tier in place and never drop a
// candidate, so every channel in the tier remains available for failover.
//
// Available strategies:
//   - random: uniform shuffle.
//   - weighted: cumulative-weight draw without replacement (default).
//   - lowest_cost: ascending estimated cost, ties in weighted order.
//   - performance: ascending P95/error-rate score with a neutral score for
//     channels that have no samples.
//   - round_robin: weighted rotation with a shared atomic counter.
//
// Randomness comes from the Env's Rand so that tests can inject a seeded
// source.
package strategies
