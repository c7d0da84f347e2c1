package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. The name
// "openai-prod" maps to PREFIX + "OPENAI_PROD".
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Get implements Provider.
func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	v := os.Getenv(p.envVar(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, p.envVar(name))
	}
	return v, nil
}

// Names implements Provider.
func (p *EnvProvider) Names(context.Context) ([]string, error) {
	var names []string
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || p.prefix == "" || !strings.HasPrefix(key, p.prefix) {
			continue
		}
		names = append(names, strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, p.prefix), "_", "-")))
	}
	return names, nil
}

// Name implements Provider.
func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) envVar(name string) string {
	return p.prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
