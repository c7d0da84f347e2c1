// Package middleware provides the HTTP middleware of the gateway.
//
// The server wraps every route in
//
//	Recovery -> RequestID -> Logging -> trace extraction -> CORS
//
// and the API routes additionally in TenantAuth, which resolves the
// caller's tenant from the "Authorization: Bearer" key and rejects unknown
// keys with 401. Admin routes use AdminAuth with the configured admin
// keys instead.
//
// RequestIDMiddleware adopts a client-supplied X-Request-ID or generates a
// UUID, and stores it with logging.WithRequestID so every *Context log
// call of the request carries it.
package middleware
