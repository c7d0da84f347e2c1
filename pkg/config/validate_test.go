package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validBase() *Config {
	cfg := NewDefault()
	cfg.Tenants = []TenantConfig{
		{ID: "acme", APIKeys: []string{"sk-acme"}},
		{ID: "globex", APIKeys: []string{"sk-globex"}},
	}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(NewDefault()); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if err := Validate(validBase()); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "localhost" }, "server.listen_address"},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "server.shutdown_timeout"},
		{"empty admin key", func(c *Config) { c.Server.AdminKeys = []string{" "} }, "server.admin_keys[0]"},
		{"cors without origins", func(c *Config) { c.Server.CORS.Enabled = true }, "server.cors.allowed_origins"},
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true; c.Server.TLS.KeyFile = "k.pem" }, "server.tls.cert_file"},
		{"tls old version", func(c *Config) {
			c.Server.TLS = TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.0"}
		}, "server.tls.min_version"},
		{"negative secret cache", func(c *Config) { c.Channels.Secrets.CacheTTL = -time.Second }, "channels.secrets.cache_ttl"},
		{"unknown strategy", func(c *Config) { c.Routing.Strategy = "fastest" }, "routing.strategy"},
		{"zero attempts", func(c *Config) { c.Routing.MaxAttempts = 0 }, "routing.max_attempts"},
		{"zero affinity size", func(c *Config) { c.Routing.Affinity.Size = 0 }, "routing.affinity.size"},
		{"zero failure threshold", func(c *Config) { c.Health.FailureThreshold = 0 }, "health.failure_threshold"},
		{"max below base cooldown", func(c *Config) { c.Health.MaxCooldown = time.Second }, "health.max_cooldown"},
		{"probe timeout over interval", func(c *Config) { c.Health.Probe.Timeout = time.Hour }, "health.probe.timeout"},
		{"zero metrics window", func(c *Config) { c.MetricsWindow = 0 }, "metrics_window"},
		{"tenant without id", func(c *Config) { c.Tenants[0].ID = "" }, "tenants[0].id"},
		{"duplicate tenant", func(c *Config) { c.Tenants[1].ID = "acme" }, "tenants[1].id"},
		{"tenant without keys", func(c *Config) { c.Tenants[0].APIKeys = nil }, "tenants[0].api_keys"},
		{"shared api key", func(c *Config) { c.Tenants[1].APIKeys = []string{"sk-acme"} }, "tenants[1].api_keys[0]"},
		{"tenant strategy", func(c *Config) { c.Tenants[0].Strategy = "sticky" }, "tenants[0].strategy"},
		{"tenant negative rpm", func(c *Config) {
			c.Tenants[0].RateLimit = &RateLimitConfig{RequestsPerMinute: -1}
		}, "tenants[0].rate_limit.requests_per_minute"},
		{"tenant negative budget", func(c *Config) {
			c.Tenants[0].Budget = &BudgetConfig{Daily: -5}
		}, "tenants[0].budget.daily"},
		{"no channels file", func(c *Config) { c.Channels.File = "" }, "channels.file"},
		{"unknown price type", func(c *Config) {
			c.Providers.Prices = map[string]PriceConfig{"bedrock": {Input: 1}}
		}, "providers.prices.bedrock"},
		{"bad enforcement", func(c *Config) { c.Limits.Enforcement = "shadow" }, "limits.enforcement"},
		{"alert threshold over one", func(c *Config) { c.Limits.DefaultBudget.AlertThreshold = 1.5 }, "limits.default_budget.alert_threshold"},
		{"bad ledger backend", func(c *Config) { c.Limits.Ledger.Backend = "redis" }, "limits.ledger.backend"},
		{"bad attempt log backend", func(c *Config) { c.AttemptLog.Backend = "postgres" }, "attempt_log.backend"},
		{"bad cron", func(c *Config) { c.AttemptLog.Retention.Schedule = "every day" }, "attempt_log.retention.schedule"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"redact pattern missing", func(c *Config) {
			c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "x"}}
		}, "telemetry.logging.redact_patterns[0].pattern"},
		{"metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
		{"unsorted buckets", func(c *Config) {
			c.Telemetry.Metrics.RouteDurationBuckets = []float64{1, 0.5}
		}, "telemetry.metrics.route_duration_buckets"},
		{"sample ratio", func(c *Config) { c.Telemetry.Tracing.SampleRatio = 2 }, "telemetry.tracing.sample_ratio"},
		{"sampler", func(c *Config) { c.Telemetry.Tracing.Sampler = "sometimes" }, "telemetry.tracing.sampler"},
		{"readiness path", func(c *Config) { c.Telemetry.Health.ReadinessPath = "ready" }, "telemetry.health.readiness_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)

			err := Validate(cfg)
			var vErr ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !vErr.HasField(tt.wantField) {
				t.Errorf("errors = %v, want one for %s", vErr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidate_DisabledSectionsSkipChecks(t *testing.T) {
	cfg := validBase()
	cfg.AttemptLog.Enabled = false
	cfg.AttemptLog.Backend = "postgres"
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Metrics.Path = ""
	cfg.Telemetry.Health.Enabled = false
	cfg.Telemetry.Health.LivenessPath = "live"

	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled sections should not be validated: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validBase()
	cfg.Routing.Strategy = "fastest"
	cfg.Health.FailureThreshold = -1
	cfg.Telemetry.Logging.Format = "xml"

	err := Validate(cfg)
	var vErr ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(vErr.Errors) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(vErr.Errors), vErr.Errors)
	}
	if !strings.Contains(err.Error(), "3 errors") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		errs []FieldError
		want string
	}{
		{name: "empty", want: "configuration validation failed"},
		{
			name: "single",
			errs: []FieldError{{Field: "server.listen_address", Message: "required"}},
			want: "configuration validation failed: server.listen_address: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (ValidationError{Errors: tt.errs}).Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
