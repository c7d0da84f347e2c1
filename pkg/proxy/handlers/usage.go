package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/types"
)

// UsageReporter reads tenant spend and limit state. *limits.Manager
// implements it.
type UsageReporter interface {
	Usage(ctx context.Context, tenantID string, p limits.Period) (*limits.UsageSummary, error)
	Status(tenantID string) limits.TenantStatus
	Tenants() []string
}

// TenantUsage is one tenant's spend over the period and its current
// budget windows.
type TenantUsage struct {
	*limits.UsageSummary
	Limits limits.TenantStatus `json:"limits"`
}

// UsageResponse is the body of GET /admin/usage.
type UsageResponse struct {
	Period    limits.Period `json:"period"`
	Tenants   []TenantUsage `json:"tenants"`
	Timestamp time.Time     `json:"timestamp"`
}

// UsageHandler serves GET /admin/usage. Query parameters:
//
//	tenant      one tenant ID; every known tenant when absent
//	start_date  first day, YYYY-MM-DD (default 30 days before end_date)
//	end_date    last day, YYYY-MM-DD (default today, UTC)
type UsageHandler struct {
	reporter UsageReporter
	now      func() time.Time
	logger   *slog.Logger
}

// NewUsageHandler creates a handler reading from reporter.
func NewUsageHandler(reporter UsageReporter) *UsageHandler {
	return &UsageHandler{
		reporter: reporter,
		now:      time.Now,
		logger:   slog.Default().With("component", "proxy.usage"),
	}
}

// ServeHTTP implements http.Handler.
func (h *UsageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		_ = proxy.WriteErrorResponse(w, methodNotAllowed(r.Method, http.MethodGet))
		return
	}

	values := r.URL.Query()
	period, err := limits.ParsePeriod(values.Get("start_date"), values.Get("end_date"), h.now())
	if err != nil {
		_ = proxy.WriteErrorResponse(w, types.NewInvalidRequestError(err.Error(), "start_date", types.CodeInvalidValue))
		return
	}

	tenants := h.reporter.Tenants()
	if id := strings.TrimSpace(values.Get("tenant")); id != "" {
		tenants = []string{id}
	}

	ctx := r.Context()
	resp := UsageResponse{
		Period:    period,
		Tenants:   make([]TenantUsage, 0, len(tenants)),
		Timestamp: h.now().UTC(),
	}
	for _, id := range tenants {
		summary, err := h.reporter.Usage(ctx, id, period)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.ErrorContext(ctx, "usage summary failed", "tenant", id, "error", err)
			_ = proxy.WriteErrorResponse(w, types.NewServerError("spend ledger unavailable"))
			return
		}
		resp.Tenants = append(resp.Tenants, TenantUsage{
			UsageSummary: summary,
			Limits:       h.reporter.Status(id),
		})
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
