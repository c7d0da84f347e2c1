// Package proxy holds the OpenAI-compatible HTTP surface shared by the
// handlers: request parsing and validation, the mapping from routing
// errors to HTTP statuses, and the JSON and server-sent event writers.
//
// # Error mapping
//
// HandleError turns the routing error taxonomy into the OpenAI error
// envelope:
//
//	routing.ErrNoEligibleChannel  503 service_unavailable
//	limits.ErrBudgetExceeded      402 insufficient_quota
//	limits.ErrRateLimited         429 rate_limit_exceeded (with Retry-After)
//	dispatch.ErrUpstreamFatal     upstream 4xx, or 400
//	dispatch.ErrAllAttemptsFailed 502 bad_gateway
//	dispatch.ErrDeadlineExceeded  504 gateway_timeout
//
// # Streaming
//
// Streams are written as "data: {chunk}" events and terminated by
// "data: [DONE]". A failure after the first chunk was relayed is written
// inline as "data: {"error":{...}}" followed by [DONE], because the 200
// status has already been sent.
//
// Subpackages:
//   - types: wire types
//   - middleware: recovery, request ID, logging, CORS, tenant auth
//   - handlers: chat completions, models and admin endpoints
package proxy
