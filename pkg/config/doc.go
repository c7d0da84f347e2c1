// Package config loads and validates the gateway configuration.
//
// Configuration is read from a YAML file on top of the defaults in
// defaults.go, then overridden from LOOM_* environment variables, then
// validated. Validation collects every problem into a ValidationError
// rather than stopping at the first.
//
//	cfg, err := config.LoadConfigWithEnvOverrides("loom.yaml")
//
// # Environment Variable Overrides
//
// Variable names are the upper-cased YAML path joined with underscores:
//
//   - LOOM_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - LOOM_ROUTING_AFFINITY_ENABLED overrides routing.affinity.enabled
//   - LOOM_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Tenants and provider prices are only configurable in the file. LoadDotEnv
// reads a .env file into the environment first; variables already set win.
//
// # Singleton
//
// Initialize stores the loaded configuration for the process; GetConfig
// and ReloadConfig read and refresh it. Components take their settings as
// explicit arguments and never read the singleton themselves.
package config
