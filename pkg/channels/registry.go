package channels

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
)

type tenantEntry struct {
	strategy string
	channels []domain.Channel
}

// StaticRegistry is an in-memory channel registry. It is safe for
// concurrent use; Snapshot never blocks writers for longer than a copy.
type StaticRegistry struct {
	mu        sync.RWMutex
	tenants   map[string]tenantEntry
	overrides map[string]string
	now       func() time.Time
	logger    *slog.Logger
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		tenants:   make(map[string]tenantEntry),
		overrides: make(map[string]string),
		now:       time.Now,
		logger:    slog.Default().With("component", "channels"),
	}
}

// SetTenant validates and installs a tenant's channels, replacing any
// previous set. The channels are copied.
func (r *StaticRegistry) SetTenant(tenantID, strategy string, channels []domain.Channel) error {
	f := File{Tenants: []TenantChannels{{ID: tenantID, Strategy: strategy, Channels: cloneAll(channels)}}}
	if err := f.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUniqueLocked(tenantID, f.Tenants[0].Channels); err != nil {
		return err
	}
	r.tenants[tenantID] = tenantEntry{strategy: strategy, channels: f.Tenants[0].Channels}
	return nil
}

// RemoveTenant drops a tenant.
func (r *StaticRegistry) RemoveTenant(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tenants, tenantID)
}

// SetStrategyOverride forces a routing strategy for a tenant regardless of
// what the channel source declares. An empty strategy removes the
// override.
func (r *StaticRegistry) SetStrategyOverride(tenantID, strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strategy == "" {
		delete(r.overrides, tenantID)
		return
	}
	r.overrides[tenantID] = strategy
}

// Snapshot implements domain.ChannelRegistry.
func (r *StaticRegistry) Snapshot(ctx context.Context, tenantID string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrTenantNotFound, tenantID)
	}
	snap := domain.NewSnapshot(tenantID, entry.channels, r.now())
	snap.Strategy = entry.strategy
	if s, ok := r.overrides[tenantID]; ok {
		snap.Strategy = s
	}
	return snap, nil
}

// Channels implements health.ChannelSource. It returns copies of every
// channel of every tenant, ordered by tenant then file order.
func (r *StaticRegistry) Channels(ctx context.Context) ([]domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Channel
	for _, id := range r.tenantIDsLocked() {
		out = append(out, cloneAll(r.tenants[id].channels)...)
	}
	return out, nil
}

// Tenants returns the sorted tenant IDs.
func (r *StaticRegistry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tenantIDsLocked()
}

// replace swaps the whole tenant set and returns the IDs of channels that
// disappeared.
func (r *StaticRegistry) replace(f *File) []string {
	next := make(map[string]tenantEntry, len(f.Tenants))
	present := make(map[string]bool)
	for _, t := range f.Tenants {
		next[t.ID] = tenantEntry{strategy: t.Strategy, channels: t.Channels}
		for _, ch := range t.Channels {
			present[ch.ID] = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for _, t := range r.tenants {
		for _, ch := range t.channels {
			if !present[ch.ID] {
				removed = append(removed, ch.ID)
			}
		}
	}
	r.tenants = next
	slices.Sort(removed)
	return removed
}

func (r *StaticRegistry) checkUniqueLocked(tenantID string, channels []domain.Channel) error {
	verr := &ValidationError{}
	for id, t := range r.tenants {
		if id == tenantID {
			continue
		}
		for _, existing := range t.channels {
			for _, ch := range channels {
				if ch.ID == existing.ID {
					verr.add(tenantID, ch.ID, "id", fmt.Sprintf("duplicate channel id (also used by tenant %q)", id))
				}
			}
		}
	}
	return verr.orNil()
}

func (r *StaticRegistry) tenantIDsLocked() []string {
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func cloneAll(channels []domain.Channel) []domain.Channel {
	out := make([]domain.Channel, len(channels))
	for i := range channels {
		out[i] = channels[i].Clone()
	}
	return out
}
