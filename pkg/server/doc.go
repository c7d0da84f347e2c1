// Package server assembles a Loom gateway from configuration.
//
// New builds, in order: the tracer, the Prometheus collector, the channels
// file registry, the provider adapters, the budget gate with its spend
// ledger, the attempt log and finally the gateway. Start watches the
// channels file, schedules attempt log retention, starts the probe loop and
// serves HTTP until the context ends or SIGINT/SIGTERM arrives.
//
// Routes:
//
//	POST /v1/chat/completions   tenant key
//	GET  /v1/models             tenant key
//	GET  /admin/channels/health admin key, when configured
//	GET  /admin/channels/stats  admin key, when configured
//	POST /admin/channels/probe  admin key, when configured
//	GET  /metrics, /health, /ready, /version
//
// Example:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    return err
//	}
//	srv, err := server.New(ctx, cfg, server.BuildInfo{Version: "1.0.0"})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
package server
