package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/middleware"
	"weaver-hq/loom/pkg/proxy/types"
	"weaver-hq/loom/pkg/telemetry/logging"
)

// Response headers describing how a request was served.
const (
	ChannelHeader  = "X-Loom-Channel"
	AttemptsHeader = "X-Loom-Attempts"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	router   Router
	validate *validator.Validate
	maxBody  int64
	logger   *slog.Logger
}

// NewChatHandler creates a chat handler. maxBody bounds request bodies;
// zero uses proxy.DefaultMaxBodyBytes.
func NewChatHandler(router Router, maxBody int64) *ChatHandler {
	return &ChatHandler{
		router:   router,
		validate: proxy.NewValidator(),
		maxBody:  maxBody,
		logger:   slog.Default().With("component", "proxy.chat"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(r.Context(), w, methodNotAllowed(r.Method, http.MethodPost))
		return
	}

	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		h.writeError(r.Context(), w, types.NewAuthenticationError("Invalid or missing API key"))
		return
	}

	req, err := proxy.ParseChatCompletionRequest(r, h.maxBody, h.validate)
	if err != nil {
		h.logger.InfoContext(r.Context(), "rejected chat request", "error", err)
		h.writeError(r.Context(), w, proxy.HandleError(err))
		return
	}

	ctx := logging.WithModel(r.Context(), req.Model)
	rc := &domain.RequestContext{
		RequestID:     middleware.GetRequestID(ctx),
		TenantID:      p.TenantID,
		APIKeyID:      p.APIKeyID,
		Model:         req.Model,
		Stream:        req.Stream,
		AllowedModels: p.AllowedModels,
		Payload:       req.ToDomain(),
	}
	if p.Affinity {
		rc.AffinityKey = proxy.AffinityKey(r, req)
	}
	rc.PreferredChannel = proxy.PreferredChannel(r, p.PreferredChannel, p.ChannelHeader)

	res, err := h.router.Route(ctx, rc)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			h.logger.InfoContext(ctx, "client went away before a channel answered")
			return
		}
		h.logger.WarnContext(ctx, "chat request failed", "error", err)
		if werr := proxy.WriteError(w, err); werr != nil {
			h.logger.ErrorContext(ctx, "failed to write error response", "error", werr)
		}
		return
	}

	w.Header().Set(ChannelHeader, res.ChannelID)
	w.Header().Set(AttemptsHeader, strconv.Itoa(res.Attempts))

	id := proxy.NewCompletionID()
	if res.Streaming() {
		h.stream(ctx, w, rc, res, id)
		return
	}

	body := proxy.FormatChatCompletionResponse(res.Response, id, rc.Model)
	if err := proxy.WriteJSONResponse(w, http.StatusOK, body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// stream relays a streaming result as server-sent events. A failure after
// the first chunk is reported inline because the status line is gone.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, res *dispatch.Result, id string) {
	// Streams may outlive the server's write timeout; the request deadline
	// bounds them instead.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	created := time.Now().Unix()
	chunks := 0
	for chunk := range res.Stream {
		if chunk.Err != nil {
			h.logger.WarnContext(ctx, "stream interrupted",
				"channel", res.ChannelID,
				"chunks", chunks,
				"error", chunk.Err,
			)
			if err := proxy.WriteSSEError(w, proxy.HandleError(chunk.Err)); err != nil {
				return
			}
			break
		}
		if err := proxy.WriteSSEChunk(w, proxy.FormatStreamChunk(chunk, id, rc.Model, created)); err != nil {
			// The client is gone; returning cancels the request context,
			// which stops the relay.
			h.logger.InfoContext(ctx, "stream write failed", "chunks", chunks, "error", err)
			return
		}
		chunks++
	}

	if err := proxy.WriteSSEDone(w); err != nil {
		h.logger.InfoContext(ctx, "failed to write stream terminator", "error", err)
	}
}

func (h *ChatHandler) writeError(ctx context.Context, w http.ResponseWriter, resp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

func methodNotAllowed(method, allowed string) *types.ErrorResponse {
	resp := types.NewErrorResponse(
		fmt.Sprintf("Method %s not allowed. Use %s instead.", method, allowed),
		types.ErrorTypeInvalidRequest, "method", types.CodeMethodNotAllowed,
	)
	resp.Error.Status = http.StatusMethodNotAllowed
	return resp
}
