package middleware

import "context"

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	// TenantID is the tenant the API key belongs to.
	TenantID string

	// APIKeyID identifies the key without revealing it.
	APIKeyID string

	// AllowedModels restricts the models the tenant may call. Empty
	// allows all.
	AllowedModels []string

	// Affinity is true when cache affinity routing is on for the tenant.
	Affinity bool

	// PreferredChannel is the channel the tenant's requests are pinned to.
	PreferredChannel string

	// ChannelHeader allows the caller to choose the preferred channel.
	ChannelHeader bool
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the caller set by TenantAuth, or nil.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}
