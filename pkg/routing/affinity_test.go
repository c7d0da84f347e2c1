package routing

import (
	"testing"
	"time"
)

func TestAffinityCache_Expiry(t *testing.T) {
	c, err := NewAffinityCache(10, time.Minute)
	if err != nil {
		t.Fatalf("NewAffinityCache() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Remember("t1", "user", "m", "c1")
	if id, ok := c.Lookup("t1", "user", "m"); !ok || id != "c1" {
		t.Fatalf("Lookup() = %q, %v; want c1", id, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Lookup("t1", "user", "m"); ok {
		t.Error("expired entry should not be returned")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, expired entry should be removed on lookup", c.Len())
	}
}

func TestAffinityCache_KeysAreScoped(t *testing.T) {
	c, _ := NewAffinityCache(10, time.Minute)
	c.Remember("t1", "user", "m", "c1")

	for _, tc := range []struct{ tenant, key, model string }{
		{"t2", "user", "m"},
		{"t1", "other", "m"},
		{"t1", "user", "m2"},
	} {
		if _, ok := c.Lookup(tc.tenant, tc.key, tc.model); ok {
			t.Errorf("Lookup(%s, %s, %s) hit, want miss", tc.tenant, tc.key, tc.model)
		}
	}

	c.Forget("t1", "user", "m")
	if _, ok := c.Lookup("t1", "user", "m"); ok {
		t.Error("Forget() did not remove the entry")
	}
}

func TestAffinityCache_Eviction(t *testing.T) {
	c, _ := NewAffinityCache(2, time.Minute)
	c.Remember("t", "k1", "m", "a")
	c.Remember("t", "k2", "m", "b")
	c.Lookup("t", "k1", "m")
	c.Remember("t", "k3", "m", "c")

	if _, ok := c.Lookup("t", "k2", "m"); ok {
		t.Error("least recently used key should have been evicted")
	}
	if _, ok := c.Lookup("t", "k1", "m"); !ok {
		t.Error("recently used key should survive")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge() = %d", c.Len())
	}
}

func TestAtomicRoutingStats(t *testing.T) {
	s := NewAtomicRoutingStats()
	s.IncrementTotal()
	s.IncrementTotal()
	s.IncrementFirstChoice("a")
	s.IncrementStrategy("weighted")
	s.IncrementAffinityHit()
	s.IncrementErrors()

	snap := s.Snapshot()
	if snap.TotalRequests != 2 || snap.FirstChoice["a"] != 1 || snap.StrategyUseCount["weighted"] != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap.AffinityHits != 1 || snap.Errors != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}

	s.Reset()
	snap = s.Snapshot()
	if snap.TotalRequests != 0 || len(snap.FirstChoice) != 0 || snap.Errors != 0 {
		t.Errorf("Snapshot() after Reset() = %+v", snap)
	}
}
