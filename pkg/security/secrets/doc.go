// Package secrets resolves ${secret:name} references in channel
// credentials.
//
// A Manager asks its providers in order and caches what they return. Two
// providers exist: DirProvider reads one file per secret from a mounted
// directory (the Kubernetes secret volume layout) and EnvProvider reads
// prefixed environment variables.
//
//	dir, _ := secrets.NewDirProvider("/var/run/loom/secrets", true)
//	m := secrets.NewManager([]secrets.Provider{dir, secrets.NewEnvProvider("LOOM_SECRET_")},
//		secrets.CacheConfig{TTL: 5 * time.Minute, MaxSize: 100})
//	key, err := m.ResolveReferences(ctx, "${secret:openai-prod}")
//
// Secret values are never logged. Names are shortened in debug output.
package secrets
