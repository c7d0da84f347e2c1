// Package handlers provides the HTTP handlers of the gateway.
//
//   - ChatHandler: POST /v1/chat/completions, JSON or server-sent events
//   - ModelsHandler: GET /v1/models, scoped to the caller's tenant
//   - AdminHandler: channel health, statistics and manual probes
//   - AttemptsHandler: GET /admin/attempts, attempt log query and export
//   - UsageHandler: GET /admin/usage, tenant spend by model and day
//
// Handlers expect the middleware chain to have authenticated the caller;
// the tenant principal is read from the request context. Routing itself is
// delegated to a Router, normally *gateway.Gateway.
//
// # Streaming
//
// Once the first chunk is on the wire the status line cannot change, so a
// failure mid-stream is sent as an error event followed by the terminator:
//
//	data: {"id":"chatcmpl-...","object":"chat.completion.chunk",...}
//	data: {"error":{"message":"...","type":"bad_gateway","code":"stream_interrupted"}}
//	data: [DONE]
package handlers
