package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"weaver-hq/loom/pkg/config"
	"weaver-hq/loom/pkg/proxy"
	"weaver-hq/loom/pkg/proxy/types"
	"weaver-hq/loom/pkg/telemetry/logging"
)

// KeyIndex resolves API keys to tenants. Keys are held as SHA-256
// digests.
type KeyIndex struct {
	mu   sync.RWMutex
	keys map[[sha256.Size]byte]*Principal
}

// NewKeyIndex indexes the API keys of tenants. affinity is the global
// cache affinity setting that tenants may override.
func NewKeyIndex(tenants []config.TenantConfig, affinity bool) *KeyIndex {
	idx := &KeyIndex{}
	idx.Update(tenants, affinity)
	return idx
}

// Update replaces the indexed tenants.
func (idx *KeyIndex) Update(tenants []config.TenantConfig, affinity bool) {
	keys := make(map[[sha256.Size]byte]*Principal)
	for _, t := range tenants {
		for _, key := range t.APIKeys {
			sum := sha256.Sum256([]byte(key))
			keys[sum] = &Principal{
				TenantID:      t.ID,
				APIKeyID:      KeyID(key),
				AllowedModels: slices.Clone(t.AllowedModels),
				Affinity:      t.AffinityEnabled(affinity),

				PreferredChannel: t.PreferredChannel,
				ChannelHeader:    t.ChannelHeader,
			}
		}
	}

	idx.mu.Lock()
	idx.keys = keys
	idx.mu.Unlock()
}

// Lookup returns the principal of key, or nil.
func (idx *KeyIndex) Lookup(key string) *Principal {
	if key == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(key))
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.keys[sum]
}

// KeyID derives a stable, non-secret identifier for an API key.
func KeyID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "key_" + hex.EncodeToString(sum[:6])
}

// TenantAuth rejects requests without a known bearer key with 401 and
// stores the caller's Principal in the request context.
func TenantAuth(idx *KeyIndex) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := idx.Lookup(proxy.ExtractAPIKey(r))
			if p == nil {
				slog.WarnContext(r.Context(), "rejected request with unknown API key",
					"component", "proxy",
					"path", r.URL.Path,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="loom"`)
				_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError("Invalid or missing API key"))
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logging.WithTenant(ctx, p.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminAuth guards the admin endpoints with the configured admin keys.
// With no keys configured every admin request is rejected.
func AdminAuth(keys []string) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, len(keys))
	for i, k := range keys {
		digests[i] = sha256.Sum256([]byte(k))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sum := sha256.Sum256([]byte(proxy.ExtractAPIKey(r)))
			for _, d := range digests {
				if subtle.ConstantTimeCompare(sum[:], d[:]) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="loom-admin"`)
			_ = proxy.WriteErrorResponse(w, types.NewAuthenticationError("Invalid or missing admin key"))
		})
	}
}

// Chain applies middleware so that the first one listed runs first.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
