// Package domain holds the data model shared by the routing and dispatch
// components of the gateway, together with the interfaces of the external
// collaborators the core depends on.
//
// # Data Model
//
//   - Channel: a configured upstream connection (provider type, credentials,
//     weight, priority, status, model mappings, pricing)
//   - Snapshot: an immutable, deep-copied view of a tenant's channels taken
//     at selection time
//   - RequestContext: everything the core needs to route one inbound call
//   - Candidate: a channel paired with the provider-side model it will be
//     called with
//   - Outcome: the result of one upstream attempt
//
// # Collaborators
//
// The core never owns channel configuration, the budget ledger or durable
// logging. It talks to them through ChannelRegistry, BudgetGate and
// AttemptLogger, which are implemented by pkg/channels, pkg/limits and
// pkg/attemptlog respectively.
//
// Snapshots are read-only for the lifetime of a request. Code that needs to
// change a channel must go through the registry, which publishes a new
// snapshot on the next call.
package domain
