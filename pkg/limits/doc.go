// Package limits implements the budget gate: per-tenant rate limits and
// spend budgets checked before a request is routed, and an idempotent
// commit of the request's settled cost afterwards.
//
// # Architecture
//
//   - ratelimit: request rate (golang.org/x/time/rate), token throughput
//     and concurrency per tenant
//   - budget: rolling hourly, daily and monthly spend windows
//   - storage: the request-keyed spend ledger (memory or SQLite)
//   - enforcement: block, or alert-only shadow mode
//
// # Usage
//
//	manager, err := limits.NewManager(ctx, limits.Config{
//	    RateLimits: map[string]ratelimit.Config{"acme": {RequestsPerMinute: 600, MaxConcurrent: 16}},
//	    Budgets:    map[string]budget.Config{"acme": {Daily: 50, Monthly: 1000}},
//	    Ledger:     ledger,
//	})
//
//	decision, err := manager.Reserve(ctx, rc)
//	if !decision.Allowed {
//	    return limits.DenialError(rc.TenantID, decision)
//	}
//	// ... route and dispatch ...
//	err = manager.Commit(ctx, rc.RequestID, outcome)
//
// A request is denied when its tenant's spend in any window already meets
// the limit; the in-flight request's own cost is not known in advance and
// is charged on commit. Commit is idempotent on the request ID and always
// returns the concurrency slot taken by Reserve.
//
// At start-up the manager replays the last 30 days of the ledger into the
// budget windows, so limits survive restarts when the SQLite ledger is
// used.
//
// Usage summarizes the ledger per tenant over a range of UTC days, with
// breakdowns by model and by day; Status reports the live budget windows.
package limits
