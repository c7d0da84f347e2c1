package storage

import (
	"context"
	"slices"
	"sync"

	"weaver-hq/loom/pkg/attemptlog"
)

// MemoryStore implements attemptlog.Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*attemptlog.Record
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Store implements attemptlog.Store.
func (s *MemoryStore) Store(ctx context.Context, rec *attemptlog.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *rec

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &cp)
	return nil
}

// Query implements attemptlog.Store.
func (s *MemoryStore) Query(ctx context.Context, q *attemptlog.Query) ([]*attemptlog.Record, error) {
	var query attemptlog.Query
	if q != nil {
		query = *q
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*attemptlog.Record
	for _, r := range s.records {
		if matches(r, &query) {
			cp := *r
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *attemptlog.Record) int {
		c := a.Timestamp.Compare(b.Timestamp)
		if query.Order == attemptlog.SortDesc {
			return -c
		}
		return c
	})

	if query.Offset >= len(out) {
		return []*attemptlog.Record{}, nil
	}
	out = out[query.Offset:]
	if len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Count implements attemptlog.Store.
func (s *MemoryStore) Count(ctx context.Context, q *attemptlog.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, r := range s.records {
		if matches(r, q) {
			n++
		}
	}
	return n, nil
}

// Delete implements attemptlog.Store.
func (s *MemoryStore) Delete(ctx context.Context, q *attemptlog.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r *attemptlog.Record) bool {
		return matches(r, q)
	})
	return int64(before - len(s.records)), nil
}

// Close implements attemptlog.Store.
func (s *MemoryStore) Close() error {
	return nil
}

func matches(r *attemptlog.Record, q *attemptlog.Query) bool {
	if q == nil {
		return true
	}
	if q.RequestID != "" && r.RequestID != q.RequestID {
		return false
	}
	if q.ChannelID != "" && r.ChannelID != q.ChannelID {
		return false
	}
	if q.Model != "" && r.Model != q.Model {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if q.Since != nil && r.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.Timestamp.After(*q.Until) {
		return false
	}
	return true
}
