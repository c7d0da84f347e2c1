// Package health serves the liveness and readiness endpoints.
//
// Liveness (/health) answers 200 whenever the process can serve HTTP.
// Readiness (/ready) runs the registered checks concurrently, each bounded
// by a timeout, and answers 503 if any of them fails. The server registers
// a "channels" check that passes while at least one active channel is
// eligible for routing, and an "attempt_log" check against the attempt
// store when the log is enabled.
//
// Example:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("channels", func(ctx context.Context) error {
//	    if !gw.Ready(ctx) {
//	        return errors.New("no eligible channel")
//	    }
//	    return nil
//	})
//	mux.Handle("GET /health", checker.LivenessHandler())
//	mux.Handle("GET /ready", checker.ReadinessHandler())
package health
