package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
)

// ChannelHealthResponse is the body of GET /admin/channels/health.
type ChannelHealthResponse struct {
	Channels  []health.ChannelHealth `json:"channels"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChannelStatsResponse is the body of GET /admin/channels/stats.
type ChannelStatsResponse struct {
	Channels  []aggregate.Stats     `json:"channels"`
	Routing   *routing.RoutingStats `json:"routing,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// ProbeResponse is the body of POST /admin/channels/probe.
type ProbeResponse struct {
	Results   []health.ProbeResult `json:"results"`
	Healthy   int                  `json:"healthy"`
	Failed    int                  `json:"failed"`
	Timestamp time.Time            `json:"timestamp"`
}

// AdminHandler serves the operator endpoints under /admin/channels.
type AdminHandler struct {
	inspector Inspector
	logger    *slog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(inspector Inspector) *AdminHandler {
	return &AdminHandler{
		inspector: inspector,
		logger:    slog.Default().With("component", "proxy.admin"),
	}
}

// Health serves GET /admin/channels/health.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodGet))
		return
	}
	h.write(w, r, ChannelHealthResponse{
		Channels:  h.inspector.ChannelHealth(),
		Timestamp: time.Now().UTC(),
	})
}

// Stats serves GET /admin/channels/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodGet))
		return
	}
	h.write(w, r, ChannelStatsResponse{
		Channels:  h.inspector.ChannelStats(),
		Routing:   h.inspector.RoutingStats(),
		Timestamp: time.Now().UTC(),
	})
}

// Probe serves POST /admin/channels/probe. It probes every channel now
// and returns the results.
func (h *AdminHandler) Probe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodPost))
		return
	}

	results := h.inspector.ProbeNow(r.Context())
	resp := ProbeResponse{Results: results, Timestamp: time.Now().UTC()}
	for _, res := range results {
		if res.OK() {
			resp.Healthy++
		} else {
			resp.Failed++
		}
	}
	h.logger.InfoContext(r.Context(), "manual probe finished", "healthy", resp.Healthy, "failed", resp.Failed)
	h.write(w, r, resp)
}

// Register mounts the admin routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("/admin/channels/health", wrap(http.HandlerFunc(h.Health)))
	mux.Handle("/admin/channels/stats", wrap(http.HandlerFunc(h.Stats)))
	mux.Handle("/admin/channels/probe", wrap(http.HandlerFunc(h.Probe)))
}

func (h *AdminHandler) write(w http.ResponseWriter, r *http.Request, body any) {
	if err := proxy.WriteJSONResponse(w, http.StatusOK, body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}
