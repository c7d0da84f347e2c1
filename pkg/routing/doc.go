// Package routing produces the ordered candidate list for a request.
//
// The Selector filters a tenant's channel snapshot to channels that are
// active, serve the requested model (directly or through a mapping), pass
// the tenant's model restriction and are admitted by the circuit breaker.
// Survivors are grouped into priority tiers, highest first, and each tier
// is ordered by the tenant's strategy (see package strategies). Tiers are
// concatenated, so lower tiers act as fallback pools for failover.
//
// # Cache Affinity
//
// When enabled, requests carrying an affinity key (user or session) prefer
// the channel that last served the same (tenant, key, model). A remembered
// channel that is still eligible is moved to the head of the list; every
// other candidate follows in its normal order. Entries live in a bounded
// LRU with a TTL.
//
// # Errors
//
// Select returns a *NoEligibleChannelError, matching ErrNoEligibleChannel,
// when nothing passes filtering. The error is fatal for the request.
package routing
