// Package tracing wires OpenTelemetry tracing for loom.
//
// New builds a tracer provider exporting over OTLP gRPC and installs it,
// together with the W3C trace context and baggage propagators, as the
// OpenTelemetry globals. The gateway and dispatcher obtain their tracers
// from the globals and emit one "gateway.route" span per request with a
// "dispatch.attempt" child per upstream attempt. The attribute keys for
// those spans live in this package.
//
// Sampling is always, never or ratio, each wrapped in a parent-based
// sampler so an incoming sampled traceparent keeps the trace sampled.
//
// Example configuration:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
package tracing
