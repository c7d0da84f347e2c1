package config

import "time"

// Config is the root configuration structure for Loom.
// It contains every section of the gateway: the HTTP server, routing and
// breaker tuning, tenants, the channels file, budget limits, the attempt
// log and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and CORS.
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`

	// Routing contains the default strategy, failover bounds and cache
	// affinity settings.
	Routing RoutingConfig `yaml:"routing" envPrefix:"ROUTING_"`

	// Health contains the circuit breaker and probe loop settings.
	Health HealthConfig `yaml:"health" envPrefix:"HEALTH_"`

	// MetricsWindow is the number of recent attempts kept per
	// (channel, model) for latency percentiles and error rates.
	// Default: 100
	MetricsWindow int `yaml:"metrics_window" env:"METRICS_WINDOW"`

	// Tenants declares every tenant with its API keys and limits.
	Tenants []TenantConfig `yaml:"tenants"`

	// Channels points at the channels file.
	Channels ChannelsConfig `yaml:"channels" envPrefix:"CHANNELS_"`

	// Providers contains settings shared by every upstream adapter.
	Providers ProvidersConfig `yaml:"providers" envPrefix:"PROVIDERS_"`

	// Limits contains the budget gate defaults and ledger storage.
	Limits LimitsConfig `yaml:"limits" envPrefix:"LIMITS_"`

	// AttemptLog contains the attempt log recorder, storage and retention.
	AttemptLog AttemptLogConfig `yaml:"attempt_log" envPrefix:"ATTEMPT_LOG_"`

	// Telemetry contains logging, metrics, tracing and health endpoints.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address" env:"LISTEN_ADDRESS"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses clear it per request.
	// Default: 0 (unbounded; requests are bounded by request_timeout)
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`

	// ShutdownTimeout is the maximum duration to wait for graceful
	// shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// MaxHeaderBytes bounds request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" env:"MAX_HEADER_BYTES"`

	// MaxBodyBytes bounds request bodies.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	// RequestTimeout is the deadline of a routed request when the client
	// does not send a shorter one.
	// Default: 120s
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`

	// AdminKeys guard the /admin endpoints. When empty the admin endpoints
	// are open.
	AdminKeys []string `yaml:"admin_keys" env:"ADMIN_KEYS"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors" envPrefix:"CORS_"`

	// TLS serves HTTPS instead of plain HTTP.
	TLS TLSConfig `yaml:"tls" envPrefix:"TLS_"`
}

// TLSConfig configures HTTPS serving. Certificates are reloaded when the
// files change, so rotated certificates apply without a restart.
type TLSConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// CertFile and KeyFile are PEM files.
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version" env:"MIN_VERSION"`

	// CipherSuites restricts the TLS 1.2 cipher suites by name. Empty uses
	// the Go defaults.
	CipherSuites []string `yaml:"cipher_suites" env:"CIPHER_SUITES"`

	// ReloadInterval is how often the files are checked for changes.
	// Default: 1m
	ReloadInterval time.Duration `yaml:"reload_interval" env:"RELOAD_INTERVAL"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: false
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// AllowedOrigins lists allowed origins. ["*"] allows all.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods" env:"ALLOWED_METHODS"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID", "X-Session-ID"]
	AllowedHeaders []string `yaml:"allowed_headers" env:"ALLOWED_HEADERS"`

	// ExposedHeaders lists headers readable by the client.
	// Default: ["X-Request-ID", "X-Loom-Channel", "X-Loom-Attempts"]
	ExposedHeaders []string `yaml:"exposed_headers" env:"EXPOSED_HEADERS"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age" env:"MAX_AGE"`

	AllowCredentials bool `yaml:"allow_credentials" env:"ALLOW_CREDENTIALS"`
}

// RoutingConfig contains configuration for channel selection and failover.
type RoutingConfig struct {
	// Strategy is the default strategy for tenants without an override:
	// random, weighted, lowest_cost, performance or round_robin.
	// Default: "weighted"
	Strategy string `yaml:"strategy" env:"STRATEGY"`

	// ErrorPenalty scales the error rate in the performance score.
	// Default: 10
	ErrorPenalty float64 `yaml:"error_penalty" env:"ERROR_PENALTY"`

	// MaxAttempts bounds the attempts per request.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`

	// AttemptTimeout bounds one upstream attempt. For streams it bounds
	// the wait for the first chunk.
	// Default: 60s
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`

	// Affinity configures cache affinity.
	Affinity AffinityConfig `yaml:"affinity" envPrefix:"AFFINITY_"`

	// Pinning configures requests pinned to a preferred channel.
	Pinning PinningConfig `yaml:"pinning" envPrefix:"PINNING_"`
}

// PinningConfig configures preferred channels.
type PinningConfig struct {
	// Strict serves a pinned request from its preferred channel only. When
	// false the other candidates follow it as failover.
	// Default: false
	Strict bool `yaml:"strict" env:"STRICT"`
}

// AffinityConfig configures the cache-affinity pre-filter.
type AffinityConfig struct {
	// Enabled turns cache affinity on for tenants that do not opt out.
	// Default: false
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// TTL is how long a remembered channel stays preferred.
	// Default: 5m
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// Size bounds the number of remembered keys.
	// Default: 10000
	Size int `yaml:"size" env:"SIZE"`
}

// HealthConfig contains the circuit breaker and probe settings.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens a breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`

	// FailureWindow bounds how far apart consecutive failures may be.
	// Default: 60s
	FailureWindow time.Duration `yaml:"failure_window" env:"FAILURE_WINDOW"`

	// BaseCooldown is the first cooldown after a breaker opens.
	// Default: 30s
	BaseCooldown time.Duration `yaml:"base_cooldown" env:"BASE_COOLDOWN"`

	// MaxCooldown caps cooldown doubling.
	// Default: 5m
	MaxCooldown time.Duration `yaml:"max_cooldown" env:"MAX_COOLDOWN"`

	// Probe configures the background probe loop.
	Probe ProbeConfig `yaml:"probe" envPrefix:"PROBE_"`
}

// ProbeConfig configures the background probe loop.
type ProbeConfig struct {
	// Enabled starts the probe loop with the server.
	// Default: true
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Interval is the time between probe rounds.
	// Default: 30s
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`

	// Timeout bounds one probe.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// Concurrency is the number of probes in flight at once.
	// Default: 8
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	// RatePerSecond paces probe starts. Zero is unlimited.
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
}

// TenantConfig declares one tenant.
type TenantConfig struct {
	// ID must match a tenant in the channels file.
	ID string `yaml:"id"`

	// APIKeys are the bearer keys that authenticate as this tenant.
	APIKeys []string `yaml:"api_keys"`

	// AllowedModels restricts the models the tenant may request. Empty
	// allows every model its channels serve.
	AllowedModels []string `yaml:"allowed_models"`

	// Strategy overrides the routing strategy for this tenant. It takes
	// precedence over the strategy declared in the channels file.
	Strategy string `yaml:"strategy"`

	// Affinity overrides routing.affinity.enabled for this tenant.
	Affinity *bool `yaml:"affinity"`

	// PreferredChannel pins the tenant's requests to one channel.
	PreferredChannel string `yaml:"preferred_channel"`

	// ChannelHeader lets callers pick a channel per request with the
	// X-Loom-Preferred-Channel header, overriding PreferredChannel.
	ChannelHeader bool `yaml:"channel_header"`

	// RateLimit overrides limits.default_rate_limit.
	RateLimit *RateLimitConfig `yaml:"rate_limit"`

	// Budget overrides limits.default_budget.
	Budget *BudgetConfig `yaml:"budget"`
}

// AffinityEnabled reports whether cache affinity applies to the tenant.
func (t *TenantConfig) AffinityEnabled(global bool) bool {
	if t.Affinity != nil {
		return *t.Affinity
	}
	return global
}

// ChannelsConfig points at the channels file.
type ChannelsConfig struct {
	// File is the path of the channels file.
	// Default: "channels.yaml"
	File string `yaml:"file" env:"FILE"`

	// Watch reloads the file when it changes.
	// Default: true
	Watch bool `yaml:"watch" env:"WATCH"`

	// Debounce is the quiet period after a burst of file events.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`

	// Secrets resolves ${secret:name} references in channel API keys.
	Secrets SecretsConfig `yaml:"secrets" envPrefix:"SECRETS_"`
}

// SecretsConfig lists where secret references are looked up. A mounted
// directory wins over the environment.
type SecretsConfig struct {
	// Dir holds one file per secret, named after it. Empty disables it.
	Dir string `yaml:"dir" env:"DIR"`

	// Watch drops cached values when files in Dir change.
	Watch bool `yaml:"watch" env:"WATCH"`

	// EnvPrefix is prepended to the upper-cased secret name.
	// Default: "LOOM_SECRET_"
	EnvPrefix string `yaml:"env_prefix" env:"ENV_PREFIX"`

	// CacheTTL is how long a resolved value is reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// ProvidersConfig contains settings shared by every upstream adapter.
type ProvidersConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host" env:"MAX_IDLE_CONNS_PER_HOST"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout" env:"IDLE_CONN_TIMEOUT"`
	DialTimeout           time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" env:"RESPONSE_HEADER_TIMEOUT"`

	// Prices overrides the per-provider-type default prices, keyed by
	// provider type.
	Prices map[string]PriceConfig `yaml:"prices"`
}

// PriceConfig is a per-1K-token price pair in USD.
type PriceConfig struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// LimitsConfig contains budget gate configuration.
type LimitsConfig struct {
	// Enforcement is "block" (deny over-limit requests) or "alert" (log
	// and allow).
	// Default: "block"
	Enforcement string `yaml:"enforcement" env:"ENFORCEMENT"`

	// DefaultRateLimit applies to tenants without their own.
	DefaultRateLimit RateLimitConfig `yaml:"default_rate_limit" envPrefix:"DEFAULT_RATE_LIMIT_"`

	// DefaultBudget applies to tenants without their own.
	DefaultBudget BudgetConfig `yaml:"default_budget" envPrefix:"DEFAULT_BUDGET_"`

	// Ledger stores committed spend.
	Ledger LedgerConfig `yaml:"ledger" envPrefix:"LEDGER_"`
}

// RateLimitConfig holds rate limits. Zero disables a dimension.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	Burst             int `yaml:"burst" env:"BURST"`
	TokensPerMinute   int `yaml:"tokens_per_minute" env:"TOKENS_PER_MINUTE"`
	MaxConcurrent     int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
}

// BudgetConfig holds spend limits in USD. Zero disables a window.
type BudgetConfig struct {
	Hourly         float64 `yaml:"hourly" env:"HOURLY"`
	Daily          float64 `yaml:"daily" env:"DAILY"`
	Monthly        float64 `yaml:"monthly" env:"MONTHLY"`
	AlertThreshold float64 `yaml:"alert_threshold" env:"ALERT_THRESHOLD"`
}

// LedgerConfig selects the spend ledger backend.
type LedgerConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend" env:"BACKEND"`

	// Path is the SQLite database file.
	// Default: "data/ledger.db"
	Path string `yaml:"path" env:"PATH"`

	// Retention is how long ledger entries are kept.
	// Default: 35 days
	Retention time.Duration `yaml:"retention" env:"RETENTION"`

	// CleanupInterval is how often old entries are removed.
	// Default: 1h
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
}

// AttemptLogConfig contains attempt log configuration.
type AttemptLogConfig struct {
	// Enabled turns the attempt log on.
	// Default: true
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Backend is "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend" env:"BACKEND"`

	// SQLite configures the SQLite backend.
	SQLite AttemptLogSQLiteConfig `yaml:"sqlite" envPrefix:"SQLITE_"`

	// AsyncBuffer is the recorder queue size. Records are dropped when it
	// is full.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer" env:"ASYNC_BUFFER"`

	// WriteTimeout bounds one store write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// MaxErrorLength truncates stored error messages.
	// Default: 500
	MaxErrorLength int `yaml:"max_error_length" env:"MAX_ERROR_LENGTH"`

	// Retention configures pruning.
	Retention RetentionConfig `yaml:"retention" envPrefix:"RETENTION_"`
}

// AttemptLogSQLiteConfig configures the SQLite attempt store.
type AttemptLogSQLiteConfig struct {
	// Path is the database file.
	// Default: "data/attempts.db"
	Path string `yaml:"path" env:"PATH"`

	// MaxOpenConns bounds open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode" env:"WAL_MODE"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// RetentionConfig configures attempt log pruning.
type RetentionConfig struct {
	// MaxAge removes records older than this. Zero keeps records forever.
	// Default: 168h (7 days)
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`

	// MaxRecords keeps at most this many records. Zero is unlimited.
	MaxRecords int64 `yaml:"max_records" env:"MAX_RECORDS"`

	// Schedule is the cron expression of the pruning job.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`
	Health  HealthEndpointsConfig `yaml:"health" envPrefix:"HEALTH_"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	// Default: "info"
	Level string `yaml:"level" env:"LEVEL"`

	// Format is json or text.
	// Default: "json"
	Format string `yaml:"format" env:"FORMAT"`

	// AddSource includes source file and line in log records.
	AddSource bool `yaml:"add_source" env:"ADD_SOURCE"`

	// RedactSecrets masks API keys and bearer tokens in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets" env:"REDACT_SECRETS"`

	// RedactPatterns adds custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is a custom log redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path" env:"PATH"`

	// Namespace prefixes every metric name.
	// Default: "loom"
	Namespace string `yaml:"namespace" env:"NAMESPACE"`

	// Subsystem is inserted between namespace and metric name.
	Subsystem string `yaml:"subsystem" env:"SUBSYSTEM"`

	// RouteDurationBuckets are histogram buckets for whole requests.
	RouteDurationBuckets []float64 `yaml:"route_duration_buckets" env:"ROUTE_DURATION_BUCKETS"`

	// AttemptDurationBuckets are histogram buckets for single attempts.
	AttemptDurationBuckets []float64 `yaml:"attempt_duration_buckets" env:"ATTEMPT_DURATION_BUCKETS"`

	// CardinalityLimit caps the label combinations per metric family.
	// Default: 10000
	CardinalityLimit int `yaml:"cardinality_limit" env:"CARDINALITY_LIMIT"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled turns tracing on.
	// Default: false
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure" env:"INSECURE"`

	// Headers are sent with every export request.
	Headers map[string]string `yaml:"headers"`

	// ServiceName is the service.name resource attribute.
	// Default: "loom"
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// Sampler is always, never or ratio.
	// Default: "ratio"
	Sampler string `yaml:"sampler" env:"SAMPLER"`

	// SampleRatio is the fraction of traces kept by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`

	// ExportTimeout bounds one export batch.
	// Default: 10s
	ExportTimeout time.Duration `yaml:"export_timeout" env:"EXPORT_TIMEOUT"`
}

// HealthEndpointsConfig configures the liveness and readiness endpoints.
type HealthEndpointsConfig struct {
	// Enabled registers the endpoints.
	// Default: true
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// LivenessPath defaults to "/health".
	LivenessPath string `yaml:"liveness_path" env:"LIVENESS_PATH"`

	// ReadinessPath defaults to "/ready".
	ReadinessPath string `yaml:"readiness_path" env:"READINESS_PATH"`
}

// Tenant returns the tenant with the given ID, or nil.
func (c *Config) Tenant(id string) *TenantConfig {
	for i := range c.Tenants {
		if c.Tenants[i].ID == id {
			return &c.Tenants[i]
		}
	}
	return nil
}
