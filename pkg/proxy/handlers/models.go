package handlers

import (
	"log/slog"
	"net/http"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/middleware"
	"weaver-hq/loom/pkg/proxy/types"
)

// ModelsHandler serves GET /v1/models: the models the caller's tenant
// may request.
type ModelsHandler struct {
	router Router
	logger *slog.Logger
}

// NewModelsHandler creates a models handler.
func NewModelsHandler(router Router) *ModelsHandler {
	return &ModelsHandler{
		router: router,
		logger: slog.Default().With("component", "proxy.models"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodGet))
		return
	}

	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError("Invalid or missing API key"))
		return
	}

	rc := &domain.RequestContext{
		RequestID:     middleware.GetRequestID(r.Context()),
		TenantID:      p.TenantID,
		APIKeyID:      p.APIKeyID,
		AllowedModels: p.AllowedModels,
	}
	models, err := h.router.Models(r.Context(), rc)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to list models", "error", err)
		_ = proxy.WriteError(w, err)
		return
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatModelList(models)); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
