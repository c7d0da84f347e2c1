package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// streamReader reads streamGenerateContent events. Gemini sends no
// terminator, so EOF is only a clean end after a candidate reported a
// finish reason.
type streamReader struct {
	channelID string
	model     string
	sse       *providers.SSEReader
	finished  bool
}

func newStreamReader(channelID, model string, body io.ReadCloser) *streamReader {
	return &streamReader{
		channelID: channelID,
		model:     model,
		sse:       providers.NewSSEReader(body),
	}
}

// Read reads the next chunk from the stream.
// Returns io.EOF when the stream ends normally.
func (s *streamReader) Read(ctx context.Context) (domain.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Chunk{}, err
		}

		ev, err := s.sse.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.finished {
					return domain.Chunk{}, io.EOF
				}
				return domain.Chunk{}, &providers.StreamError{
					Channel: s.channelID,
					Message: "stream ended before a finish reason",
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
		if ev.Data == "" {
			continue
		}

		var raw struct {
			GenerateResponse
			Error *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error,omitempty"`
		}
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
				Message: raw.Error.Status + ": " + raw.Error.Message,
			}
		}

		resp := &raw.GenerateResponse
		chunk := domain.Chunk{
			ID:           resp.ResponseID,
			Model:        resp.ModelVersion,
			Delta:        resp.text(),
			FinishReason: resp.finishReason(),
			Usage:        resp.usage(),
		}
		if chunk.Model == "" {
			chunk.Model = s.model
		}
		if chunk.FinishReason != "" {
			s.finished = true
		}
		if chunk.Delta == "" && chunk.FinishReason == "" && chunk.Usage == nil {
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
