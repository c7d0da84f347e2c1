package domain

import (
	"slices"
	"time"
)

// Snapshot is an immutable view of a tenant's channels at one point in
// time. It is built once per request and shared read-only by the selector
// and the dispatcher.
type Snapshot struct {
	// TenantID is the tenant the snapshot was taken for.
	TenantID string

	// Strategy is the tenant's routing strategy override. Empty means the
	// gateway default applies.
	Strategy string

	// Channels holds deep copies of the tenant's channels.
	Channels []Channel

	// TakenAt is when the registry materialized the snapshot.
	TakenAt time.Time
}

// NewSnapshot copies channels into a new snapshot so that later edits to the
// source slice cannot leak into an in-flight request.
func NewSnapshot(tenantID string, channels []Channel, takenAt time.Time) *Snapshot {
	cp := make([]Channel, len(channels))
	for i := range channels {
		cp[i] = channels[i].Clone()
	}
	return &Snapshot{
		TenantID: tenantID,
		Channels: cp,
		TakenAt:  takenAt,
	}
}

// Channel returns the channel with the given ID.
func (s *Snapshot) Channel(id string) (*Channel, bool) {
	for i := range s.Channels {
		if s.Channels[i].ID == id {
			return &s.Channels[i], true
		}
	}
	return nil, false
}

// Models returns the sorted set of client-facing models served by the
// snapshot's selectable channels.
func (s *Snapshot) Models() []string {
	var out []string
	for i := range s.Channels {
		if s.Channels[i].Selectable() {
			out = append(out, s.Channels[i].ServedModels()...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Len returns the number of channels in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Channels)
}
