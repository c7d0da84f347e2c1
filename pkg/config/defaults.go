package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB
	DefaultRequestTimeout  = 120 * time.Second
	DefaultCORSMaxAge      = 3600
	DefaultTLSMinVersion   = "1.2"
	DefaultTLSReload       = time.Minute

	// Routing defaults
	DefaultStrategy       = "weighted"
	DefaultErrorPenalty   = 10.0
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 60 * time.Second
	DefaultAffinityTTL    = 5 * time.Minute
	DefaultAffinitySize   = 10000
	DefaultMetricsWindow  = 100

	// Health defaults
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 60 * time.Second
	DefaultBaseCooldown     = 30 * time.Second
	DefaultMaxCooldown      = 5 * time.Minute
	DefaultProbeEnabled     = true
	DefaultProbeInterval    = 30 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 8

	// Channels defaults
	DefaultChannelsFile     = "channels.yaml"
	DefaultChannelsWatch    = true
	DefaultChannelsDebounce = 250 * time.Millisecond
	DefaultSecretsEnvPrefix = "LOOM_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Limits defaults
	DefaultEnforcement          = "block"
	DefaultLedgerBackend        = "memory"
	DefaultLedgerPath           = "data/ledger.db"
	DefaultLedgerRetention      = 35 * 24 * time.Hour
	DefaultLedgerCleanup        = time.Hour
	DefaultBudgetAlertThreshold = 0.8

	// Attempt log defaults
	DefaultAttemptLogEnabled        = true
	DefaultAttemptLogBackend        = "sqlite"
	DefaultAttemptLogSQLitePath     = "data/attempts.db"
	DefaultAttemptLogMaxOpenConns   = 4
	DefaultAttemptLogWALMode        = true
	DefaultAttemptLogBusyTimeout    = 5 * time.Second
	DefaultAttemptLogAsyncBuffer    = 1000
	DefaultAttemptLogWriteTimeout   = 5 * time.Second
	DefaultAttemptLogMaxErrorLength = 500
	DefaultRetentionMaxAge          = 7 * 24 * time.Hour
	DefaultRetentionSchedule        = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultRedactSecrets        = true
	DefaultMetricsEnabled       = true
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "loom"
	DefaultCardinalityLimit     = 10000
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingServiceName   = "loom"
	DefaultTracingSampler       = "ratio"
	DefaultTracingSampleRatio   = 1.0
	DefaultTracingExportTimeout = 10 * time.Second
	DefaultHealthEnabled        = true
	DefaultLivenessPath         = "/health"
	DefaultReadinessPath        = "/ready"
)

// Default histogram buckets in seconds.
var (
	DefaultRouteDurationBuckets   = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	DefaultAttemptDurationBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
)

// NewDefault returns a configuration with every default applied. Loading
// starts from it so that booleans defaulting to true survive a file that
// omits them and can still be turned off explicitly.
func NewDefault() *Config {
	cfg := &Config{
		Health: HealthConfig{
			Probe: ProbeConfig{Enabled: DefaultProbeEnabled},
		},
		Channels: ChannelsConfig{Watch: DefaultChannelsWatch},
		AttemptLog: AttemptLogConfig{
			Enabled: DefaultAttemptLogEnabled,
			SQLite:  AttemptLogSQLiteConfig{WALMode: DefaultAttemptLogWALMode},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: DefaultRedactSecrets},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Health:  HealthEndpointsConfig{Enabled: DefaultHealthEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyRoutingDefaults(&cfg.Routing)
	applyHealthDefaults(&cfg.Health)

	if cfg.MetricsWindow == 0 {
		cfg.MetricsWindow = DefaultMetricsWindow
	}

	if cfg.Channels.File == "" {
		cfg.Channels.File = DefaultChannelsFile
	}
	if cfg.Channels.Debounce == 0 {
		cfg.Channels.Debounce = DefaultChannelsDebounce
	}
	if cfg.Channels.Secrets.EnvPrefix == "" {
		cfg.Channels.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Channels.Secrets.CacheTTL == 0 {
		cfg.Channels.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	applyLimitsDefaults(&cfg.Limits)
	applyAttemptLogDefaults(&cfg.AttemptLog)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	cors := &s.CORS
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID", "X-Session-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID", "X-Loom-Channel", "X-Loom-Attempts"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}

	if s.TLS.MinVersion == "" {
		s.TLS.MinVersion = DefaultTLSMinVersion
	}
	if s.TLS.ReloadInterval == 0 {
		s.TLS.ReloadInterval = DefaultTLSReload
	}
}

func applyRoutingDefaults(r *RoutingConfig) {
	if r.Strategy == "" {
		r.Strategy = DefaultStrategy
	}
	if r.ErrorPenalty == 0 {
		r.ErrorPenalty = DefaultErrorPenalty
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	if r.AttemptTimeout == 0 {
		r.AttemptTimeout = DefaultAttemptTimeout
	}
	if r.Affinity.TTL == 0 {
		r.Affinity.TTL = DefaultAffinityTTL
	}
	if r.Affinity.Size == 0 {
		r.Affinity.Size = DefaultAffinitySize
	}
}

func applyHealthDefaults(h *HealthConfig) {
	if h.FailureThreshold == 0 {
		h.FailureThreshold = DefaultFailureThreshold
	}
	if h.FailureWindow == 0 {
		h.FailureWindow = DefaultFailureWindow
	}
	if h.BaseCooldown == 0 {
		h.BaseCooldown = DefaultBaseCooldown
	}
	if h.MaxCooldown == 0 {
		h.MaxCooldown = DefaultMaxCooldown
	}
	if h.Probe.Interval == 0 {
		h.Probe.Interval = DefaultProbeInterval
	}
	if h.Probe.Timeout == 0 {
		h.Probe.Timeout = DefaultProbeTimeout
	}
	if h.Probe.Concurrency == 0 {
		h.Probe.Concurrency = DefaultProbeConcurrency
	}
}

func applyLimitsDefaults(l *LimitsConfig) {
	if l.Enforcement == "" {
		l.Enforcement = DefaultEnforcement
	}
	if l.DefaultBudget.AlertThreshold == 0 {
		l.DefaultBudget.AlertThreshold = DefaultBudgetAlertThreshold
	}
	if l.Ledger.Backend == "" {
		l.Ledger.Backend = DefaultLedgerBackend
	}
	if l.Ledger.Path == "" {
		l.Ledger.Path = DefaultLedgerPath
	}
	if l.Ledger.Retention == 0 {
		l.Ledger.Retention = DefaultLedgerRetention
	}
	if l.Ledger.CleanupInterval == 0 {
		l.Ledger.CleanupInterval = DefaultLedgerCleanup
	}
}

func applyAttemptLogDefaults(a *AttemptLogConfig) {
	if a.Backend == "" {
		a.Backend = DefaultAttemptLogBackend
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAttemptLogSQLitePath
	}
	if a.SQLite.MaxOpenConns == 0 {
		a.SQLite.MaxOpenConns = DefaultAttemptLogMaxOpenConns
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultAttemptLogBusyTimeout
	}
	if a.AsyncBuffer == 0 {
		a.AsyncBuffer = DefaultAttemptLogAsyncBuffer
	}
	if a.WriteTimeout == 0 {
		a.WriteTimeout = DefaultAttemptLogWriteTimeout
	}
	if a.MaxErrorLength == 0 {
		a.MaxErrorLength = DefaultAttemptLogMaxErrorLength
	}
	if a.Retention.MaxAge == 0 {
		a.Retention.MaxAge = DefaultRetentionMaxAge
	}
	if a.Retention.Schedule == "" {
		a.Retention.Schedule = DefaultRetentionSchedule
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(t.Metrics.RouteDurationBuckets) == 0 {
		t.Metrics.RouteDurationBuckets = append([]float64(nil), DefaultRouteDurationBuckets...)
	}
	if len(t.Metrics.AttemptDurationBuckets) == 0 {
		t.Metrics.AttemptDurationBuckets = append([]float64(nil), DefaultAttemptDurationBuckets...)
	}
	if t.Metrics.CardinalityLimit == 0 {
		t.Metrics.CardinalityLimit = DefaultCardinalityLimit
	}

	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ExportTimeout == 0 {
		t.Tracing.ExportTimeout = DefaultTracingExportTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
}
