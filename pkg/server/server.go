// Package server assembles the gateway from configuration and serves it
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"weaver-hq/loom/pkg/channels"
	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/gateway"
	"weaver-hq/loom/pkg/limits"
	"weaver-hq/loom/pkg/providerfactory"
	"weaver-hq/loom/pkg/proxy/middleware"
	"weaver-hq/loom/pkg/routing/health"
	"weaver-hq/loom/pkg/security/certs"
	"weaver-hq/loom/pkg/security/secrets"
	telhealth "weaver-hq/loom/pkg/telemetry/health"
	"weaver-hq/loom/pkg/telemetry/metrics"
	"weaver-hq/loom/pkg/telemetry/tracing"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server owns every long-lived component of a running gateway.
type Server struct {
	cfg  *config.Config
	info BuildInfo

	registry  *channels.FileRegistry
	providers *providerfactory.Manager
	collector *metrics.Collector
	tracer    *tracing.Tracer
	limits    *limits.Manager
	attempts  *attemptLog
	gateway   *gateway.Gateway
	checker   *telhealth.Checker
	keys      *middleware.KeyIndex
	certs     *certs.Reloader
	secrets   *secrets.Manager

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// New builds a server from cfg: it opens the channels file and the
// configured stores and assembles the gateway. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, info BuildInfo) (s *Server, err error) {
	s = &Server{
		cfg:    cfg,
		info:   info,
		logger: slog.Default().With("component", "server"),
	}
	defer func() {
		if err != nil {
			s.closeComponents()
		}
	}()

	s.tracer, err = tracing.New(&cfg.Telemetry.Tracing, info.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	registry := prometheus.NewRegistry()
	s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, registry)

	s.secrets, err = Secrets(&cfg.Channels.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets: %w", err)
	}
	s.registry, err = channels.NewFileRegistry(cfg.Channels.File, channels.WithSecrets(s.secrets))
	if err != nil {
		return nil, err
	}
	known := s.registry.Tenants()
	for _, t := range cfg.Tenants {
		if !slices.Contains(known, t.ID) {
			s.logger.Warn("tenant has no channels in the channels file", "tenant", t.ID, "file", cfg.Channels.File)
		}
		if t.Strategy != "" {
			s.registry.SetStrategyOverride(t.ID, t.Strategy)
		}
	}

	s.providers, err = providerfactory.NewManager(ProviderConfig(&cfg.Providers))
	if err != nil {
		return nil, fmt.Errorf("failed to create provider adapters: %w", err)
	}

	s.limits, err = newLimits(ctx, cfg, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget gate: %w", err)
	}

	s.attempts, err = newAttemptLog(&cfg.AttemptLog)
	if err != nil {
		return nil, err
	}

	gcfg, err := GatewayConfig(cfg)
	if err != nil {
		return nil, err
	}
	deps := gateway.Deps{
		Registry:   s.registry,
		Adapters:   s.providers,
		Health:     health.NewMonitor(BreakerConfig(&cfg.Health, s.collector.ObserveBreaker)),
		Stats:      newStats(cfg),
		Accountant: Accountant(&cfg.Providers),
		Budget:     s.limits,
		Observer:   s.collector,
	}
	if s.attempts != nil {
		deps.Attempts = s.attempts.recorder
	}
	if cfg.Health.Probe.Enabled {
		deps.Prober = s.providers
	}
	s.gateway, err = gateway.New(gcfg, deps)
	if err != nil {
		return nil, err
	}

	s.registry.OnChange(func(removed []string) {
		s.gateway.Forget(removed...)
		for _, id := range removed {
			s.collector.ForgetChannel(id)
		}
		s.logger.Info("channels reloaded", "removed", len(removed))
	})

	if cfg.Server.TLS.Enabled {
		tlsCfg := &cfg.Server.TLS
		s.certs = certs.NewReloader(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.ReloadInterval)
		if err := s.certs.Load(); err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
	}

	s.keys = middleware.NewKeyIndex(cfg.Tenants, cfg.Routing.Affinity.Enabled)
	s.checker = s.newChecker()
	return s, nil
}

func (s *Server) newChecker() *telhealth.Checker {
	c := telhealth.New(telhealth.DefaultCheckTimeout)
	c.Register("channels", func(ctx context.Context) error {
		if !s.gateway.Ready(ctx) {
			return errors.New("no eligible channel")
		}
		return nil
	})
	if s.attempts != nil {
		c.Register("attempt_log", func(ctx context.Context) error {
			_, err := s.attempts.store.Count(ctx, nil)
			return err
		})
	}
	return c
}

// Start runs the server and blocks until ctx is cancelled, a termination
// signal arrives or the listener fails. It then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.Channels.Watch {
		if err := s.registry.Watch(runCtx, s.cfg.Channels.Debounce); err != nil {
			return fmt.Errorf("failed to watch channels file: %w", err)
		}
	}
	if s.attempts != nil {
		if err := s.attempts.pruner.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start attempt log retention: %w", err)
		}
	}
	s.gateway.Start(runCtx)

	s.httpServer = &http.Server{
		Addr:           s.cfg.Server.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}
	if s.certs != nil {
		tlsCfg, err := certs.ServerConfig(s.certs, certs.Options{
			MinVersion:   s.cfg.Server.TLS.MinVersion,
			CipherSuites: s.cfg.Server.TLS.CipherSuites,
		})
		if err != nil {
			return fmt.Errorf("invalid TLS settings: %w", err)
		}
		s.httpServer.TLSConfig = tlsCfg
		go s.certs.Run(runCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway",
			"address", s.cfg.Server.ListenAddress,
			"version", s.info.Version,
			"tenants", len(s.cfg.Tenants),
			"tls", s.certs != nil,
		)
		var err error
		if s.certs != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
	return s.Shutdown(context.Background())
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// shutdown timeout and then closes every component.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.closeComponents()
		if err := s.tracer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to flush traces", "error", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// closeComponents releases components in reverse dependency order. It
// tolerates components that were never built.
func (s *Server) closeComponents() {
	if s.gateway != nil {
		s.gateway.Close()
	}
	if s.registry != nil {
		_ = s.registry.Close()
	}
	if s.attempts != nil {
		if err := s.attempts.Close(); err != nil {
			s.logger.Warn("failed to close attempt log", "error", err)
		}
	}
	if s.limits != nil {
		if err := s.limits.Close(); err != nil {
			s.logger.Warn("failed to close spend ledger", "error", err)
		}
	}
	if s.providers != nil {
		_ = s.providers.Close()
	}
	if s.secrets != nil {
		_ = s.secrets.Close()
	}
}

// IsRunning reports whether Start is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Gateway returns the assembled gateway.
func (s *Server) Gateway() *gateway.Gateway {
	return s.gateway
}
