package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing/strategies"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// HasField reports whether any error refers to field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

type fieldErrors []FieldError

func (f *fieldErrors) add(field, format string, args ...any) {
	*f = append(*f, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs fieldErrors

	validateServer(&cfg.Server, &errs)
	validateRouting(&cfg.Routing, &errs)
	validateHealth(&cfg.Health, &errs)

	if cfg.MetricsWindow < 1 {
		errs.add("metrics_window", "must be at least 1")
	}

	validateTenants(cfg.Tenants, &errs)

	if cfg.Channels.File == "" {
		errs.add("channels.file", "channels file is required")
	}
	if cfg.Channels.Debounce < 0 {
		errs.add("channels.debounce", "must not be negative")
	}
	if cfg.Channels.Secrets.CacheTTL < 0 {
		errs.add("channels.secrets.cache_ttl", "must not be negative")
	}

	validateProviders(&cfg.Providers, &errs)
	validateLimits(&cfg.Limits, &errs)
	validateAttemptLog(&cfg.AttemptLog, &errs)
	validateTelemetry(&cfg.Telemetry, &errs)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(s *ServerConfig, errs *fieldErrors) {
	if s.ListenAddress == "" {
		errs.add("server.listen_address", "listen address is required")
	} else if _, port, err := net.SplitHostPort(s.ListenAddress); err != nil || port == "" {
		errs.add("server.listen_address", "invalid listen address %q: must be host:port", s.ListenAddress)
	}

	if s.ReadTimeout < 0 {
		errs.add("server.read_timeout", "must not be negative")
	}
	if s.WriteTimeout < 0 {
		errs.add("server.write_timeout", "must not be negative")
	}
	if s.IdleTimeout < 0 {
		errs.add("server.idle_timeout", "must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		errs.add("server.shutdown_timeout", "must be positive")
	}
	if s.MaxHeaderBytes < 0 {
		errs.add("server.max_header_bytes", "must not be negative")
	}
	if s.MaxBodyBytes < 0 {
		errs.add("server.max_body_bytes", "must not be negative")
	}
	if s.RequestTimeout < 0 {
		errs.add("server.request_timeout", "must not be negative")
	}
	for i, key := range s.AdminKeys {
		if strings.TrimSpace(key) == "" {
			errs.add(fmt.Sprintf("server.admin_keys[%d]", i), "admin key must not be empty")
		}
	}

	if s.CORS.Enabled && len(s.CORS.AllowedOrigins) == 0 {
		errs.add("server.cors.allowed_origins", "at least one origin is required when CORS is enabled")
	}
	if s.CORS.MaxAge < 0 {
		errs.add("server.cors.max_age", "must not be negative")
	}

	if t := &s.TLS; t.Enabled {
		if t.CertFile == "" {
			errs.add("server.tls.cert_file", "certificate file is required when TLS is enabled")
		}
		if t.KeyFile == "" {
			errs.add("server.tls.key_file", "key file is required when TLS is enabled")
		}
		if t.MinVersion != "1.2" && t.MinVersion != "1.3" {
			errs.add("server.tls.min_version", "must be 1.2 or 1.3, got %q", t.MinVersion)
		}
		if t.ReloadInterval < 0 {
			errs.add("server.tls.reload_interval", "must not be negative")
		}
	}
}

func validateRouting(r *RoutingConfig, errs *fieldErrors) {
	if _, err := strategies.Parse(r.Strategy); err != nil {
		errs.add("routing.strategy", "%v", err)
	}
	if r.ErrorPenalty < 0 {
		errs.add("routing.error_penalty", "must not be negative")
	}
	if r.MaxAttempts < 1 {
		errs.add("routing.max_attempts", "must be at least 1")
	}
	if r.AttemptTimeout <= 0 {
		errs.add("routing.attempt_timeout", "must be positive")
	}
	if r.Affinity.TTL <= 0 {
		errs.add("routing.affinity.ttl", "must be positive")
	}
	if r.Affinity.Size < 1 {
		errs.add("routing.affinity.size", "must be at least 1")
	}
}

func validateHealth(h *HealthConfig, errs *fieldErrors) {
	if h.FailureThreshold < 1 {
		errs.add("health.failure_threshold", "must be at least 1")
	}
	if h.FailureWindow < 0 {
		errs.add("health.failure_window", "must not be negative")
	}
	if h.BaseCooldown <= 0 {
		errs.add("health.base_cooldown", "must be positive")
	}
	if h.MaxCooldown < h.BaseCooldown {
		errs.add("health.max_cooldown", "must be at least base_cooldown (%s)", h.BaseCooldown)
	}

	p := &h.Probe
	if p.Interval <= 0 {
		errs.add("health.probe.interval", "must be positive")
	}
	if p.Timeout <= 0 {
		errs.add("health.probe.timeout", "must be positive")
	} else if p.Interval > 0 && p.Timeout > p.Interval {
		errs.add("health.probe.timeout", "must not exceed the probe interval (%s)", p.Interval)
	}
	if p.Concurrency < 1 {
		errs.add("health.probe.concurrency", "must be at least 1")
	}
	if p.RatePerSecond < 0 {
		errs.add("health.probe.rate_per_second", "must not be negative")
	}
}

func validateTenants(tenants []TenantConfig, errs *fieldErrors) {
	ids := make(map[string]bool, len(tenants))
	keys := make(map[string]string)

	for i := range tenants {
		t := &tenants[i]
		prefix := fmt.Sprintf("tenants[%d]", i)

		if t.ID == "" {
			errs.add(prefix+".id", "tenant ID is required")
		} else if ids[t.ID] {
			errs.add(prefix+".id", "duplicate tenant ID %q", t.ID)
		}
		ids[t.ID] = true

		if len(t.APIKeys) == 0 {
			errs.add(prefix+".api_keys", "at least one API key is required")
		}
		for j, key := range t.APIKeys {
			field := fmt.Sprintf("%s.api_keys[%d]", prefix, j)
			switch owner, seen := keys[key]; {
			case strings.TrimSpace(key) == "":
				errs.add(field, "API key must not be empty")
			case seen:
				errs.add(field, "API key already assigned to tenant %q", owner)
			default:
				keys[key] = t.ID
			}
		}

		for j, m := range t.AllowedModels {
			if m == "" {
				errs.add(fmt.Sprintf("%s.allowed_models[%d]", prefix, j), "model name must not be empty")
			}
		}

		if t.Strategy != "" {
			if _, err := strategies.Parse(t.Strategy); err != nil {
				errs.add(prefix+".strategy", "%v", err)
			}
		}
		if t.RateLimit != nil {
			validateRateLimit(prefix+".rate_limit", t.RateLimit, errs)
		}
		if t.Budget != nil {
			validateBudget(prefix+".budget", t.Budget, errs)
		}
	}
}

func validateProviders(p *ProvidersConfig, errs *fieldErrors) {
	if p.MaxIdleConns < 0 {
		errs.add("providers.max_idle_conns", "must not be negative")
	}
	if p.MaxIdleConnsPerHost < 0 {
		errs.add("providers.max_idle_conns_per_host", "must not be negative")
	}
	if p.IdleConnTimeout < 0 {
		errs.add("providers.idle_conn_timeout", "must not be negative")
	}
	if p.DialTimeout < 0 {
		errs.add("providers.dial_timeout", "must not be negative")
	}
	if p.ResponseHeaderTimeout < 0 {
		errs.add("providers.response_header_timeout", "must not be negative")
	}
	for name, price := range p.Prices {
		field := "providers.prices." + name
		if !domain.ProviderType(name).Valid() {
			errs.add(field, "unknown provider type %q", name)
		}
		if price.Input < 0 || price.Output < 0 {
			errs.add(field, "prices must not be negative")
		}
	}
}

func validateLimits(l *LimitsConfig, errs *fieldErrors) {
	switch l.Enforcement {
	case "block", "alert":
	default:
		errs.add("limits.enforcement", "invalid enforcement %q: must be 'block' or 'alert'", l.Enforcement)
	}

	validateRateLimit("limits.default_rate_limit", &l.DefaultRateLimit, errs)
	validateBudget("limits.default_budget", &l.DefaultBudget, errs)

	switch l.Ledger.Backend {
	case "memory":
	case "sqlite":
		if l.Ledger.Path == "" {
			errs.add("limits.ledger.path", "path is required for the sqlite ledger")
		}
	default:
		errs.add("limits.ledger.backend", "invalid backend %q: must be 'memory' or 'sqlite'", l.Ledger.Backend)
	}
	if l.Ledger.Retention < 0 {
		errs.add("limits.ledger.retention", "must not be negative")
	}
}

func validateRateLimit(prefix string, r *RateLimitConfig, errs *fieldErrors) {
	if r.RequestsPerMinute < 0 {
		errs.add(prefix+".requests_per_minute", "must not be negative")
	}
	if r.Burst < 0 {
		errs.add(prefix+".burst", "must not be negative")
	}
	if r.TokensPerMinute < 0 {
		errs.add(prefix+".tokens_per_minute", "must not be negative")
	}
	if r.MaxConcurrent < 0 {
		errs.add(prefix+".max_concurrent", "must not be negative")
	}
}

func validateBudget(prefix string, b *BudgetConfig, errs *fieldErrors) {
	if b.Hourly < 0 {
		errs.add(prefix+".hourly", "must not be negative")
	}
	if b.Daily < 0 {
		errs.add(prefix+".daily", "must not be negative")
	}
	if b.Monthly < 0 {
		errs.add(prefix+".monthly", "must not be negative")
	}
	if b.AlertThreshold < 0 || b.AlertThreshold > 1 {
		errs.add(prefix+".alert_threshold", "must be between 0.0 and 1.0")
	}
}

func validateAttemptLog(a *AttemptLogConfig, errs *fieldErrors) {
	if !a.Enabled {
		return
	}

	switch a.Backend {
	case "memory":
	case "sqlite":
		if a.SQLite.Path == "" {
			errs.add("attempt_log.sqlite.path", "path is required for the sqlite backend")
		}
		if a.SQLite.MaxOpenConns < 1 {
			errs.add("attempt_log.sqlite.max_open_conns", "must be at least 1")
		}
		if a.SQLite.BusyTimeout < 0 {
			errs.add("attempt_log.sqlite.busy_timeout", "must not be negative")
		}
	default:
		errs.add("attempt_log.backend", "invalid backend %q: must be 'memory' or 'sqlite'", a.Backend)
	}

	if a.AsyncBuffer < 1 {
		errs.add("attempt_log.async_buffer", "must be at least 1")
	}
	if a.WriteTimeout <= 0 {
		errs.add("attempt_log.write_timeout", "must be positive")
	}
	if a.MaxErrorLength < 0 {
		errs.add("attempt_log.max_error_length", "must not be negative")
	}

	if a.Retention.MaxAge < 0 {
		errs.add("attempt_log.retention.max_age", "must not be negative")
	}
	if a.Retention.MaxRecords < 0 {
		errs.add("attempt_log.retention.max_records", "must not be negative")
	}
	if a.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(a.Retention.Schedule); err != nil {
			errs.add("attempt_log.retention.schedule", "invalid cron expression %q: %v", a.Retention.Schedule, err)
		}
	}
}

func validateTelemetry(t *TelemetryConfig, errs *fieldErrors) {
	switch t.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs.add("telemetry.logging.level", "invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", t.Logging.Level)
	}
	switch t.Logging.Format {
	case "json", "text":
	default:
		errs.add("telemetry.logging.format", "invalid logging format %q: must be 'json' or 'text'", t.Logging.Format)
	}
	for i, p := range t.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs.add(fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i), "pattern is required")
		}
	}

	if t.Metrics.Enabled {
		if !strings.HasPrefix(t.Metrics.Path, "/") {
			errs.add("telemetry.metrics.path", "metrics path must start with /")
		}
		if t.Metrics.CardinalityLimit < 1 {
			errs.add("telemetry.metrics.cardinality_limit", "must be at least 1")
		}
		validateBuckets("telemetry.metrics.route_duration_buckets", t.Metrics.RouteDurationBuckets, errs)
		validateBuckets("telemetry.metrics.attempt_duration_buckets", t.Metrics.AttemptDurationBuckets, errs)
	}

	if t.Tracing.Enabled && t.Tracing.Endpoint == "" {
		errs.add("telemetry.tracing.endpoint", "tracing endpoint is required when tracing is enabled")
	}
	switch t.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs.add("telemetry.tracing.sampler", "invalid sampler %q: must be 'always', 'never', or 'ratio'", t.Tracing.Sampler)
	}
	if t.Tracing.SampleRatio < 0 || t.Tracing.SampleRatio > 1.0 {
		errs.add("telemetry.tracing.sample_ratio", "sample ratio must be between 0.0 and 1.0")
	}

	if t.Health.Enabled {
		if !strings.HasPrefix(t.Health.LivenessPath, "/") {
			errs.add("telemetry.health.liveness_path", "liveness path must start with /")
		}
		if !strings.HasPrefix(t.Health.ReadinessPath, "/") {
			errs.add("telemetry.health.readiness_path", "readiness path must start with /")
		}
	}
}

func validateBuckets(field string, buckets []float64, errs *fieldErrors) {
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			errs.add(field, "buckets must be strictly increasing")
			return
		}
	}
}
