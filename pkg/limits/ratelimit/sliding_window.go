package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow is a bucketed counter over a rolling time period. Callers
// pass the current time so usage can be replayed and tested
// deterministically.
type SlidingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	mu         sync.Mutex
}

type bucket struct {
	timestamp time.Time
	value     int64
}

// NewSlidingWindow creates a window of window/bucketSize buckets.
func NewSlidingWindow(window, bucketSize time.Duration) *SlidingWindow {
	n := int(window/bucketSize) + 1
	if n < 2 {
		n = 2
	}
	return &SlidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, n),
	}
}

// AddAt adds value to the bucket containing at.
func (sw *SlidingWindow) AddAt(at time.Time, value int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(at)
	key := at.Truncate(sw.bucketSize)

	target := -1
	for i := range sw.buckets {
		if sw.buckets[i].timestamp.Equal(key) {
			sw.buckets[i].value += value
			return
		}
		if target < 0 && sw.buckets[i].timestamp.IsZero() {
			target = i
		}
	}
	if target < 0 {
		target = 0
		for i := range sw.buckets {
			if sw.buckets[i].timestamp.Before(sw.buckets[target].timestamp) {
				target = i
			}
		}
	}
	sw.buckets[target] = bucket{timestamp: key, value: value}
}

// SumAt returns the total inside the window ending at now.
func (sw *SlidingWindow) SumAt(now time.Time) int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(now)
	var sum int64
	for i := range sw.buckets {
		sum += sw.buckets[i].value
	}
	return sum
}

// ResetAt returns when the oldest bucket leaves the window.
func (sw *SlidingWindow) ResetAt(now time.Time) time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(now)
	var oldest time.Time
	for i := range sw.buckets {
		ts := sw.buckets[i].timestamp
		if !ts.IsZero() && (oldest.IsZero() || ts.Before(oldest)) {
			oldest = ts
		}
	}
	if oldest.IsZero() {
		return now
	}
	return oldest.Add(sw.window)
}

func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	for i := range sw.buckets {
		if ts := sw.buckets[i].timestamp; !ts.IsZero() && !ts.After(cutoff) {
			sw.buckets[i] = bucket{}
		}
	}
}
