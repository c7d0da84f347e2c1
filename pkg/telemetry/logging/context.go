package logging

import (
	"context"
	"log/slog"
)

type contextKey string

// Context keys for request log fields.
const (
	RequestIDKey contextKey = "request_id"
	TenantKey    contextKey = "tenant"
	ChannelKey   contextKey = "channel"
	ModelKey     contextKey = "model"
)

// contextKeys is the order fields are attached in.
var contextKeys = []contextKey{RequestIDKey, TenantKey, ChannelKey, ModelKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

// WithTenant adds a tenant ID to the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantKey, tenantID)
}

// GetTenant retrieves the tenant ID from the context.
func GetTenant(ctx context.Context) string {
	return get(ctx, TenantKey)
}

// WithChannel adds a channel ID to the context.
func WithChannel(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ChannelKey, channelID)
}

// GetChannel retrieves the channel ID from the context.
func GetChannel(ctx context.Context) string {
	return get(ctx, ChannelKey)
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	return get(ctx, ModelKey)
}

func get(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, k := range contextKeys {
		if v := get(ctx, k); v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	return attrs
}
