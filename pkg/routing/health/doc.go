// Package health implements the per-channel circuit breaker and the active
// probe loop that feeds it.
//
// # State Machine
//
//   - closed to open after FailureThreshold consecutive failures inside the
//     failure window, or on a single failed probe.
//   - open to half-open once the cooldown has elapsed and the next attempt
//     claims the channel through Acquire.
//   - half-open to closed when the single trial succeeds.
//   - half-open to open when the trial fails. The cooldown doubles up to
//     MaxCooldown and resets to BaseCooldown on close.
//
// Acquire returns a Permit. Only the trial permit, resolved with Done,
// decides a half-open breaker; attempts admitted earlier that finish late
// are ignored until the breaker settles.
//
// Caller cancellations never count against a channel. A fatal upstream
// rejection counts only when it is an authentication failure.
//
// # Probing
//
// ProbeLoop runs one background task for the whole channel set. Each round
// lists channels from a ChannelSource, probes the active ones with bounded
// concurrency and pacing, and records every result with RecordProbe.
package health
