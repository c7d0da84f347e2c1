package budget

import (
	"sync"
	"time"
)

// RollingWindow tracks spending over a rolling time window.
//
// The window is divided into fixed-size buckets. Buckets older than the
// window are pruned on every access. RollingWindow is safe for concurrent
// use.
type RollingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	mu         sync.Mutex
}

type bucket struct {
	timestamp time.Time
	amount    float64
}

// NewRollingWindow creates a rolling window. One spare bucket is allocated
// because a window that is not bucket-aligned touches window/bucketSize+1
// truncated bucket times.
func NewRollingWindow(window, bucketSize time.Duration) *RollingWindow {
	if bucketSize <= 0 {
		bucketSize = window
	}
	n := int(window/bucketSize) + 1
	if n < 2 {
		n = 2
	}
	return &RollingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, n),
	}
}

// Duration returns the window length.
func (rw *RollingWindow) Duration() time.Duration {
	return rw.window
}

// AddAt adds spending to the bucket containing at. Buckets that fall out of
// the window ending at at are pruned first; an amount older than every
// bucket of a full window is discarded.
func (rw *RollingWindow) AddAt(at time.Time, amount float64) {
	if amount == 0 {
		return
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(at)
	b := rw.bucketLocked(at)
	if b != nil {
		b.amount += amount
	}
}

// SumAt returns the spend inside the window ending at now.
func (rw *RollingWindow) SumAt(now time.Time) float64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(now)
	var sum float64
	for i := range rw.buckets {
		if !rw.buckets[i].timestamp.IsZero() {
			sum += rw.buckets[i].amount
		}
	}
	return sum
}

// ResetAt returns when the oldest spend in the window ages out, or now when
// the window is empty.
func (rw *RollingWindow) ResetAt(now time.Time) time.Time {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.pruneLocked(now)
	var oldest time.Time
	for i := range rw.buckets {
		ts := rw.buckets[i].timestamp
		if !ts.IsZero() && (oldest.IsZero() || ts.Before(oldest)) {
			oldest = ts
		}
	}
	if oldest.IsZero() {
		return now
	}
	return oldest.Add(rw.window)
}

// Reset clears all buckets.
func (rw *RollingWindow) Reset() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	clear(rw.buckets)
}

// pruneLocked clears buckets whose start is at or before now-window.
func (rw *RollingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.window)
	for i := range rw.buckets {
		ts := rw.buckets[i].timestamp
		if !ts.IsZero() && !ts.After(cutoff) {
			rw.buckets[i] = bucket{}
		}
	}
}

// bucketLocked finds or claims the bucket for at. It returns nil when at is
// older than every bucket and there is no free slot.
func (rw *RollingWindow) bucketLocked(at time.Time) *bucket {
	key := at.Truncate(rw.bucketSize)

	free, oldest := -1, -1
	for i := range rw.buckets {
		ts := rw.buckets[i].timestamp
		switch {
		case ts.Equal(key):
			return &rw.buckets[i]
		case ts.IsZero():
			if free < 0 {
				free = i
			}
		case oldest < 0 || ts.Before(rw.buckets[oldest].timestamp):
			oldest = i
		}
	}

	idx := free
	if idx < 0 {
		if !key.After(rw.buckets[oldest].timestamp) {
			return nil
		}
		idx = oldest
	}
	rw.buckets[idx] = bucket{timestamp: key}
	return &rw.buckets[idx]
}
