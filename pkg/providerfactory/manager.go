package providerfactory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// Manager owns one adapter per provider type and the HTTP client they
// share. Adapters hold no channel state, so the manager is built once at
// start-up and never changes when channels are reloaded.
//
// Manager is safe for concurrent use; it is read-only after NewManager.
type Manager struct {
	client   *providers.HTTPClient
	adapters map[domain.ProviderType]providers.Adapter
	logger   *slog.Logger
}

// NewManager creates adapters for every known provider type.
func NewManager(cfg providers.ClientConfig) (*Manager, error) {
	m := &Manager{
		client:   providers.NewHTTPClient(cfg),
		adapters: make(map[domain.ProviderType]providers.Adapter, len(domain.ProviderTypes)),
		logger:   slog.Default().With("component", "providerfactory"),
	}

	for _, kind := range domain.ProviderTypes {
		adapter, err := NewAdapter(kind, m.client)
		if err != nil {
			m.client.Close()
			return nil, err
		}
		m.adapters[kind] = adapter
	}

	m.logger.Debug("adapters registered", "count", len(m.adapters))
	return m, nil
}

// Adapter returns the adapter for a provider type.
func (m *Manager) Adapter(kind domain.ProviderType) (providers.Adapter, error) {
	adapter, ok := m.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, kind)
	}
	return adapter, nil
}

// For returns the adapter serving a channel.
func (m *Manager) For(ch *domain.Channel) (providers.Adapter, error) {
	adapter, err := m.Adapter(ch.Type)
	if err != nil {
		return nil, &providers.ConfigError{
			Channel: ch.ID,
			Field:   "type",
			Message: err.Error(),
		}
	}
	return adapter, nil
}

// Types returns the registered provider types, sorted.
func (m *Manager) Types() []domain.ProviderType {
	types := make([]domain.ProviderType, 0, len(m.adapters))
	for t := range m.adapters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Probe runs the lightweight probe of the channel's adapter. It lets the
// manager serve as the health monitor's prober.
func (m *Manager) Probe(ctx context.Context, ch *domain.Channel) error {
	adapter, err := m.For(ch)
	if err != nil {
		return err
	}
	return adapter.Probe(ctx, ch)
}

// Close releases pooled connections.
func (m *Manager) Close() error {
	m.client.Close()
	m.logger.Debug("provider manager closed")
	return nil
}
