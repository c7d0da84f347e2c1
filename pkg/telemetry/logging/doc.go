// Package logging builds the process logger.
//
// The handler returned by New wraps a log/slog JSON or text handler and
// adds two things:
//
//   - request fields stored in the context (request ID, tenant, channel,
//     model) and the active trace and span IDs are attached to every
//     *Context log call
//   - credentials are redacted: attributes whose key names a secret
//     (api_key, authorization, token, ...) are masked, and API keys or
//     bearer tokens embedded in string values are replaced
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactSecrets: true})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "routed", "api_key", "sk-abc123") // request_id added, api_key masked
package logging
