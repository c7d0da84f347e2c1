// Package providers defines the adapter contract between the dispatcher
// and upstream LLM APIs, plus the pieces every HTTP-based adapter shares.
//
// # Overview
//
// An Adapter speaks one provider type (openai, azure, anthropic, gemini,
// local, custom). Adapters hold no per-channel state: each call receives
// the *domain.Channel it should talk to, together with the resolved
// domain.ModelMapping that names the upstream model and any parameter
// overrides.
//
// The concrete adapters live in subpackages:
//
//   - openai: OpenAI, Azure OpenAI and OpenAI-compatible endpoints
//   - anthropic: Anthropic Messages API
//   - gemini: Google Gemini generateContent API
//
// # Errors
//
// Adapters return the typed errors of this package (AuthError,
// RateLimitError, TimeoutError, ProviderError and friends). Classify maps
// any of them to a domain.OutcomeKind and an HTTP status:
//
//	kind, status := providers.Classify(err)
//	switch kind {
//	case domain.OutcomeTransient:
//	    // try the next candidate
//	case domain.OutcomeFatal:
//	    // give up, the request itself is bad
//	}
//
// # HTTP
//
// HTTPClient wraps a pooled http.Client and performs exactly one exchange
// per call. It never retries; the dispatcher decides where the next
// attempt goes. SSEReader parses text/event-stream bodies for the
// streaming adapters.
//
// # Streaming
//
// Stream returns a channel of domain.Chunk once the upstream accepted the
// request. A mid-stream failure arrives as a final chunk with Err set.
// Cancelling the context closes the channel without an error chunk.
package providers
