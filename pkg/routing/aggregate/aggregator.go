// Package aggregate maintains rolling latency and error statistics per
// (channel, model) pair from completed dispatch attempts.
//
// Each pair owns a fixed-capacity ring buffer. Inserting into a full buffer
// evicts the oldest sample. Percentiles are computed exactly by sorting the
// bounded window, so results are deterministic for a given sample sequence.
//
// The store is a sync.Map of per-key windows, each guarded by its own mutex.
// There is no lock spanning channels.
package aggregate

import (
	"slices"
	"strings"
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
)

// DefaultCapacity is the number of samples kept per (channel, model).
const DefaultCapacity = 200

// Stats is a point-in-time summary of one window.
type Stats struct {
	ChannelID string `json:"channel_id"`
	Model     string `json:"model"`

	// Samples is the number of outcomes in the window.
	Samples int `json:"samples"`

	// P50, P95 and P99 are computed over successful attempts only.
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`

	// ErrorRate is failures / samples over the window.
	ErrorRate float64 `json:"error_rate"`

	LastUpdated time.Time `json:"last_updated"`
}

type key struct {
	channel string
	model   string
}

type sample struct {
	latency time.Duration
	failed  bool
}

// window is a ring buffer of samples.
type window struct {
	mu      sync.Mutex
	buf     []sample
	next    int
	count   int
	updated time.Time
}

func (w *window) add(s sample, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf[w.next] = s
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
	w.updated = now
}

func (w *window) stats(k key) Stats {
	w.mu.Lock()
	samples := make([]sample, w.count)
	// Oldest first so the copy is independent of the ring position.
	start := (w.next - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		samples[i] = w.buf[(start+i)%len(w.buf)]
	}
	updated := w.updated
	w.mu.Unlock()

	st := Stats{
		ChannelID:   k.channel,
		Model:       k.model,
		Samples:     len(samples),
		LastUpdated: updated,
	}
	if len(samples) == 0 {
		return st
	}

	var failures int
	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if s.failed {
			failures++
			continue
		}
		latencies = append(latencies, s.latency)
	}
	st.ErrorRate = float64(failures) / float64(len(samples))

	slices.Sort(latencies)
	st.P50 = percentile(latencies, 0.50)
	st.P95 = percentile(latencies, 0.95)
	st.P99 = percentile(latencies, 0.99)
	return st
}

// percentile uses the nearest-rank index floor(n*p), clamped to the last
// element. sorted must be ascending.
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(float64(n) * p)
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Aggregator is the keyed store of rolling windows.
type Aggregator struct {
	capacity int
	windows  sync.Map // key -> *window
	now      func() time.Time
}

// New creates an aggregator keeping capacity samples per key. A
// non-positive capacity uses DefaultCapacity.
func New(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{
		capacity: capacity,
		now:      time.Now,
	}
}

// Record adds one attempt outcome. Caller cancellations say nothing about
// the channel and are dropped.
func (a *Aggregator) Record(channelID, model string, o domain.Outcome) {
	if channelID == "" || o.Kind == domain.OutcomeCanceled {
		return
	}
	w := a.window(key{channel: channelID, model: model})
	w.add(sample{latency: o.Latency, failed: !o.Success()}, a.now())
}

// Percentiles returns the current statistics for (channelID, model). The
// zero Stats (Samples == 0) is returned for unknown keys.
func (a *Aggregator) Percentiles(channelID, model string) Stats {
	k := key{channel: channelID, model: model}
	v, ok := a.windows.Load(k)
	if !ok {
		return Stats{ChannelID: channelID, Model: model}
	}
	return v.(*window).stats(k)
}

// Snapshot returns statistics for every known key, sorted by channel then
// model.
func (a *Aggregator) Snapshot() []Stats {
	var out []Stats
	a.windows.Range(func(k, v any) bool {
		out = append(out, v.(*window).stats(k.(key)))
		return true
	})
	slices.SortFunc(out, func(x, y Stats) int {
		if c := strings.Compare(x.ChannelID, y.ChannelID); c != 0 {
			return c
		}
		return strings.Compare(x.Model, y.Model)
	})
	return out
}

// Forget drops all windows of a channel, used when a channel is removed
// from configuration.
func (a *Aggregator) Forget(channelID string) {
	a.windows.Range(func(k, _ any) bool {
		if k.(key).channel == channelID {
			a.windows.Delete(k)
		}
		return true
	})
}

// Reset drops every window.
func (a *Aggregator) Reset() {
	a.windows.Range(func(k, _ any) bool {
		a.windows.Delete(k)
		return true
	})
}

func (a *Aggregator) window(k key) *window {
	if v, ok := a.windows.Load(k); ok {
		return v.(*window)
	}
	v, _ := a.windows.LoadOrStore(k, &window{buf: make([]sample, a.capacity)})
	return v.(*window)
}
