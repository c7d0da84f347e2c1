package server

import (
	"net/http"

	"weaver-hq/loom/pkg/proxy/handlers"
	"weaver-hq/loom/pkg/proxy/middleware"
	telhealth "weaver-hq/loom/pkg/telemetry/health"
	"weaver-hq/loom/pkg/telemetry/tracing"
)

// Handler returns the HTTP handler with every route and the middleware
// chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	tenant := middleware.TenantAuth(s.keys)

	mux.Handle("/v1/chat/completions", tenant(handlers.NewChatHandler(s.gateway, s.cfg.Server.MaxBodyBytes)))
	mux.Handle("/v1/models", tenant(handlers.NewModelsHandler(s.gateway)))

	admin := func(h http.Handler) http.Handler { return h }
	if len(s.cfg.Server.AdminKeys) > 0 {
		admin = middleware.AdminAuth(s.cfg.Server.AdminKeys)
	}
	handlers.NewAdminHandler(s.gateway).Register(mux, admin)
	if s.attempts != nil {
		mux.Handle("/admin/attempts", admin(handlers.NewAttemptsHandler(s.attempts.store)))
	}
	mux.Handle("/admin/usage", admin(handlers.NewUsageHandler(s.limits)))

	if s.cfg.Telemetry.Metrics.Enabled {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}
	if hc := s.cfg.Telemetry.Health; hc.Enabled {
		mux.Handle(hc.LivenessPath, s.checker.LivenessHandler())
		mux.Handle(hc.ReadinessPath, s.checker.ReadinessHandler())
		mux.Handle("/version", telhealth.VersionHandler(s.info.Version, s.info.Commit, s.info.BuildTime))
	}

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		tracing.HTTPMiddleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(s.cfg.Server.CORS),
	)
}
