package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"weaver-hq/loom/pkg/attemptlog"
	"weaver-hq/loom/pkg/attemptlog/export"
	"weaver-hq/loom/pkg/attemptlog/query"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/types"
)

// exportPageSize is how many records are read from the store at a time.
const exportPageSize = 500

// AttemptsHandler serves GET /admin/attempts: the attempt log filtered by
// query parameters and encoded as json, ndjson or csv (format=...).
//
// With all=true every matching record is streamed and limit only sets the
// page size; otherwise a single page is returned.
type AttemptsHandler struct {
	store  attemptlog.Store
	logger *slog.Logger
}

// NewAttemptsHandler creates a handler reading from store.
func NewAttemptsHandler(store attemptlog.Store) *AttemptsHandler {
	return &AttemptsHandler{
		store:  store,
		logger: slog.Default().With("component", "proxy.attempts"),
	}
}

// ServeHTTP implements http.Handler.
func (h *AttemptsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodGet))
		return
	}

	values := r.URL.Query()
	format, err := export.ParseFormat(values.Get("format"))
	if err != nil {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), "format", types.CodeInvalidValue))
		return
	}
	params, err := query.FromValues(values)
	if err != nil {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidValue))
		return
	}
	q, err := params.Build(time.Now())
	if err != nil {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidValue))
		return
	}

	exp := export.New(format)
	ctx := r.Context()

	if values.Get("all") != "true" {
		records, err := h.store.Query(ctx, q)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", exp.ContentType())
		if err := exp.Export(ctx, records, w); err != nil {
			h.logger.ErrorContext(ctx, "failed to write attempts", "error", err)
		}
		return
	}

	pageSize := q.Limit
	if values.Get("limit") == "" {
		pageSize = exportPageSize
	}
	records, errc := export.Stream(ctx, h.store, *q, pageSize)
	w.Header().Set("Content-Type", exp.ContentType())
	if err := exp.ExportStream(ctx, records, w); err != nil {
		h.logger.ErrorContext(ctx, "attempt export interrupted", "error", err)
	}
	// Drain so the pager exits when the writer stopped early.
	for range records {
	}
	if err := <-errc; err != nil && !errors.Is(err, ctx.Err()) {
		h.logger.ErrorContext(ctx, "attempt export query failed", "error", err)
	}
}

func (h *AttemptsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, attemptlog.ErrInvalidQuery) {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), "", types.CodeInvalidValue))
		return
	}
	h.logger.ErrorContext(r.Context(), "attempt query failed", "error", err)
	_ = proxy.WriteErrorResponse(w, types.NewServerError("attempt log unavailable"))
}
