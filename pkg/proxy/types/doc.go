// Package types defines the OpenAI-compatible wire types of the HTTP
// surface: the chat completion request with its validation tags, the
// JSON and streaming responses, the model list and the error envelope.
//
// Requests are converted to domain.ChatRequest with ToDomain before
// routing, so nothing below the proxy depends on the wire format.
package types
