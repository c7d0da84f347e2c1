// Package anthropic implements the adapter for Anthropic's Messages API.
//
// # Request Transformation
//
//   - System (and developer) messages are joined into the "system" field
//   - Remaining messages must start with user and alternate between user
//     and assistant; other sequences are rejected as a ValidationError
//   - max_tokens is required by the API and defaults to 4096
//   - Mapping overrides (top_k, metadata) are merged into the request body
//
// # Response Transformation
//
//   - Text content blocks are concatenated into a single string
//   - input_tokens/output_tokens become prompt/completion tokens
//   - Stop reasons are normalized (end_turn -> stop, max_tokens -> length,
//     tool_use -> tool_calls)
//
// # Streaming
//
// The SSE stream is read event by event. message_start carries the prompt
// token count, content_block_delta events become chunks, message_delta
// carries the stop reason and the final output token count, and
// message_stop ends the stream. An error event, or a body that ends before
// message_stop, is reported as a StreamError.
//
// # Probing
//
// Anthropic has no free endpoint. Probe sends a one-token message and
// treats 200, 400 and 429 as reachable: each of them proves the API is up
// and the key was accepted.
//
// # Headers
//
// Requests carry x-api-key and anthropic-version (config.anthropic_version,
// default 2023-06-01) instead of a Bearer token.
package anthropic
