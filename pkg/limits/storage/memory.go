package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryLedger is an in-memory Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

// Append implements Ledger.
func (m *MemoryLedger) Append(_ context.Context, e Entry) (bool, error) {
	if err := validate(e); err != nil {
		return false, err
	}
	if e.CommittedAt.IsZero() {
		e.CommittedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.RequestID]; ok {
		return false, nil
	}
	m.entries[e.RequestID] = e
	return true, nil
}

// Get implements Ledger.
func (m *MemoryLedger) Get(_ context.Context, requestID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[requestID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Since implements Ledger.
func (m *MemoryLedger) Since(_ context.Context, since time.Time) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.CommittedAt.Before(since) {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.CommittedAt.Compare(b.CommittedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RequestID, b.RequestID)
	})
	return out, nil
}

// Cleanup implements Ledger.
func (m *MemoryLedger) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.entries {
		if e.CommittedAt.Before(olderThan) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries.
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Ledger.
func (m *MemoryLedger) Close() error {
	return nil
}
