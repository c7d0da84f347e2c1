package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/proxy/types"
)

// NewCompletionID returns a completion ID of the form chatcmpl-<uuid>.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// FormatChatCompletionResponse converts an upstream response. The model
// reported to the client is the one it asked for.
func FormatChatCompletionResponse(resp *domain.Response, id, requestedModel string) *types.ChatCompletionResponse {
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	usage := types.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
	}

	return &types.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   requestedModel,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.ResponseMessage{Role: "assistant", Content: resp.Content},
			FinishReason: finish,
		}},
		Usage: usage,
	}
}

// FormatStreamChunk converts one relayed chunk. All chunks of a stream
// share id and created.
func FormatStreamChunk(chunk domain.Chunk, id, requestedModel string, created int64) *types.ChatCompletionStreamChunk {
	out := &types.ChatCompletionStreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   requestedModel,
		Choices: []types.StreamChoice{{
			Index: 0,
			Delta: types.Delta{Content: chunk.Delta},
		}},
	}
	if chunk.FinishReason != "" {
		reason := chunk.FinishReason
		out.Choices[0].FinishReason = &reason
	}
	if chunk.Usage != nil {
		out.Usage = &types.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return out
}

// FormatModelList builds the body of GET /v1/models.
func FormatModelList(models []string) *types.ModelList {
	list := &types.ModelList{Object: "list", Data: make([]types.Model, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, types.Model{ID: m, Object: "model", OwnedBy: "loom"})
	}
	return list
}

// WriteJSONResponse writes data as JSON with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an error envelope with its status.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders prepares w for a server-sent event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// WriteSSEChunk writes one data event and flushes it.
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	return writeEvent(w, data)
}

// WriteSSEError writes an inline error event: data: {"error":{...}}.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	return writeEvent(w, data)
}

// WriteSSEDone writes the terminating data: [DONE] event.
func WriteSSEDone(w http.ResponseWriter) error {
	return writeEvent(w, []byte("[DONE]"))
}

func writeEvent(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
