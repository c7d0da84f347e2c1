// Package telemetry groups loom's observability packages.
//
//   - logging: slog setup with secret redaction and request-scoped loggers
//   - metrics: Prometheus collector implementing gateway.Observer
//   - tracing: OpenTelemetry provider and span attribute keys
//   - health: liveness and readiness endpoints
//
// The server wires all four from the telemetry section of the configuration:
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    path: /metrics
//	  tracing:
//	    enabled: false
//	  health:
//	    enabled: true
package telemetry
