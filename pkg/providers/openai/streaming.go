package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// doneMarker terminates an OpenAI SSE stream.
const doneMarker = "[DONE]"

// streamReader reads Server-Sent Events (SSE) from an OpenAI-compatible
// streaming endpoint.
type streamReader struct {
	channelID string
	sse       *providers.SSEReader
	finished  bool
}

func newStreamReader(channelID string, body io.ReadCloser) *streamReader {
	return &streamReader{
		channelID: channelID,
		sse:       providers.NewSSEReader(body),
	}
}

// Read reads the next relayable chunk from the stream.
// Returns io.EOF when the stream ends normally.
func (s *streamReader) Read(ctx context.Context) (domain.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Chunk{}, err
		}

		ev, err := s.sse.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Some OpenAI-compatible servers omit [DONE]; a finish
				// reason is enough to call the stream complete.
				if s.finished {
					return domain.Chunk{}, io.EOF
				}
				return domain.Chunk{}, &providers.StreamError{
					Channel: s.channelID,
					Message: "stream ended before completion",
				}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Chunk{}, ctxErr
			}
			return domain.Chunk{}, &providers.StreamError{
				Channel: s.channelID,
				Message: "failed to read stream",
				Cause:   err,
			}
		}

		if ev.Data == doneMarker {
			return domain.Chunk{}, io.EOF
		}
		if ev.Data == "" {
			continue
		}

		var raw OpenAIStreamResponse
		if err := json.Unmarshal([]byte(ev.Data), &raw); err != nil {
			return domain.Chunk{}, &providers.ParseError{
				Channel:     s.channelID,
				RawResponse: ev.Data,
				Cause:       fmt.Errorf("failed to parse stream chunk: %w", err),
			}
		}
		if raw.Error != nil {
			return domain.Chunk{}, &providers.StreamError{
				Channel: s.channelID,
				Message: raw.Error.Message,
			}
		}

		chunk, ok := transformStreamChunk(&raw)
		if chunk.FinishReason != "" {
			s.finished = true
		}
		if !ok {
			continue
		}
		return chunk, nil
	}
}

// Close closes the stream and releases resources.
func (s *streamReader) Close() error {
	return s.sse.Close()
}

// pump relays chunks from r to out until the stream ends, then closes out.
// A read failure is delivered as a final chunk with Err set. Cancellation
// closes out without an error chunk; the consumer observes ctx itself.
func pump(ctx context.Context, r *streamReader, out chan<- domain.Chunk) {
	defer close(out)
	defer r.Close()

	for {
		chunk, err := r.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			providers.Send(ctx, out, domain.Chunk{Err: err})
			return
		}
		if !providers.Send(ctx, out, chunk) {
			return
		}
	}
}
