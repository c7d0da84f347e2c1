package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// HasReference reports whether s contains a ${secret:name} reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}

// Manager resolves secrets through an ordered list of providers.
type Manager struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager. Earlier providers win.
func NewManager(providers []Provider, cache CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cache),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// Get returns the first value any provider has for name.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if v, ok := m.cache.Get(name); ok {
		return v, nil
	}

	var errs []error
	for _, p := range m.providers {
		v, err := p.Get(ctx, name)
		if err == nil {
			m.cache.Set(name, v)
			m.logger.Debug("secret resolved", "name", shorten(name), "provider", p.Name())
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
}

// ResolveReferences replaces every ${secret:name} in s. Any unresolved
// reference fails the whole call.
func (m *Manager) ResolveReferences(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimSpace(refPattern.FindStringSubmatch(ref)[1])
		v, err := m.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// Refresh clears the cache and every provider cache.
func (m *Manager) Refresh(ctx context.Context) error {
	m.cache.Clear()
	var errs []error
	for _, p := range m.providers {
		if r, ok := p.(Refresher); ok {
			if err := r.Refresh(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Names lists every secret name known to any provider, sorted.
func (m *Manager) Names(ctx context.Context) []string {
	set := make(map[string]struct{})
	for _, p := range m.providers {
		names, err := p.Names(ctx)
		if err != nil {
			m.logger.Warn("failed to list secrets", "provider", p.Name(), "error", err)
			continue
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close closes providers that hold resources.
func (m *Manager) Close() error {
	var errs []error
	for _, p := range m.providers {
		if c, ok := p.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func shorten(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
