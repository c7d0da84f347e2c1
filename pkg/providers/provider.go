package providers

import (
	"context"

	"weaver-hq/loom/pkg/domain"
)

// Adapter is the interface every upstream API family implements.
//
// Adapters are stateless with respect to channels: one adapter instance
// serves every channel of its provider type and reads the base URL,
// credentials and provider specific settings from the channel passed to
// each call. This lets the registry swap channel configuration without
// rebuilding adapters.
//
// All methods accept a context.Context for cancellation and timeout
// control. Implementations must return promptly once the context is done.
//
// Example usage:
//
//	adapter := openai.New(client)
//	resp, err := adapter.Complete(ctx, ch, mapping, req)
//	if err != nil {
//	    kind, status := providers.Classify(err)
//	    ...
//	}
type Adapter interface {
	// Type returns the provider type this adapter speaks.
	Type() domain.ProviderType

	// Complete sends a non-streaming request. mapping.Target is the model
	// name sent upstream and mapping.Override is merged into the request
	// parameters.
	//
	// A returned response is well-formed. Errors are the typed errors of
	// this package and can be classified with Classify.
	Complete(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (*domain.Response, error)

	// Stream sends a streaming request. It returns once the upstream has
	// accepted the request; an error at this point means nothing was
	// received and the request may be retried elsewhere.
	//
	// The returned channel yields chunks until the stream ends and is then
	// closed. A failure mid-stream is delivered as a final chunk with Err
	// set. If ctx is cancelled the producer stops and closes the channel.
	Stream(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (<-chan domain.Chunk, error)

	// Probe performs a lightweight reachability check against the channel.
	// It is only called by the background probe loop.
	Probe(ctx context.Context, ch *domain.Channel) error
}

// Finish reason values shared by every adapter.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// StreamBuffer is the channel capacity used by adapters for streamed
// chunks.
const StreamBuffer = 16

// MergeParams returns the extra request parameters for a call: the
// client's pass-through parameters overlaid with the mapping override.
// The result is a new map; neither input is modified.
func MergeParams(req *domain.ChatRequest, mapping domain.ModelMapping) map[string]any {
	if len(req.Params) == 0 && len(mapping.Override) == 0 {
		return nil
	}
	out := make(map[string]any, len(req.Params)+len(mapping.Override))
	for k, v := range req.Params {
		out[k] = v
	}
	for k, v := range mapping.Override {
		out[k] = v
	}
	return out
}

// Send delivers a chunk unless ctx is done. It reports whether the chunk was
// delivered.
func Send(ctx context.Context, out chan<- domain.Chunk, chunk domain.Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
