package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// streamReader reads Server-Sent Events (SSE) from Anthropic's streaming API.
type streamReader struct {
	channelID string
	sse       *providers.SSEReader
	state     streamState
	stopped   bool
}

func newStreamReader(channelID string, body io.ReadCloser) *streamReader {
	return &streamReader{
		channelID: channelID,
		sse:       providers.NewSSEReader(body),
	}
}

// Read reads the next chunk from the stream.
// Returns io.EOF when the stream ends normally.
func (s *streamReader) Read(ctx context.Context) (domain.Chunk, error) {
	if s.stopped {
		return domain.Chunk{}, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return domain.Chunk{}, err
		}

		ev, err := s.sse.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return domain.Chunk{}, &providers.StreamError{
					Channel: s.channelID,
					Message: "stream ended before message_stop",
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

		var event AnthropicStreamEvent
		if ev.Data != "" {
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				return domain.Chunk{}, &providers.ParseError{
					Channel:     s.channelID,
					RawResponse: ev.Data,
					Cause:       fmt.Errorf("failed to parse stream event: %w", err),
				}
			}
		}
		if event.Type == "" {
			event.Type = ev.Event
		}

		if event.Type == "message_stop" {
			s.stopped = true
			return domain.Chunk{}, io.EOF
		}

		chunk, ok, err := transformStreamEvent(&event, &s.state)
		if err != nil {
			return domain.Chunk{}, &providers.StreamError{
				Channel: s.channelID,
				Message: err.Error(),
			}
		}
		if ok {
			return chunk, nil
		}
	}
}

// Close closes the stream and releases resources.
func (s *streamReader) Close() error {
	return s.sse.Close()
}

// pump relays chunks from r to out until the stream ends, then closes out.
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
