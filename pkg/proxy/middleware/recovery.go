package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a 500 response and logs
// the stack.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"component", "proxy",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			_ = proxy.WriteErrorResponse(w, types.NewServerError("An internal error occurred. Please try again later."))
		}()

		next.ServeHTTP(w, r)
	})
}
