package budget

import (
	"fmt"
	"time"
)

// Tracker tracks spend across the configured windows. A request is
// rejected once spend in any window meets its limit; the shortest window
// is reported first.
type Tracker struct {
	config  Config
	windows []*limitWindow
}

type limitWindow struct {
	name  string
	limit float64
	rw    *RollingWindow
}

// NewTracker creates a tracker. Only non-zero limits get a window.
func NewTracker(config Config) *Tracker {
	t := &Tracker{config: config}
	add := func(name string, limit float64, window, bucket time.Duration) {
		if limit > 0 {
			t.windows = append(t.windows, &limitWindow{name: name, limit: limit, rw: NewRollingWindow(window, bucket)})
		}
	}
	add("hourly", config.Hourly, HourlyWindow, time.Minute)
	add("daily", config.Daily, DailyWindow, time.Hour)
	add("monthly", config.Monthly, MonthlyWindow, 24*time.Hour)
	return t
}

// Config returns the tracker's limits.
func (t *Tracker) Config() Config {
	return t.config
}

// AddAt records spend committed at the given time in every window.
func (t *Tracker) AddAt(at time.Time, amount float64) {
	for _, w := range t.windows {
		w.rw.AddAt(at, amount)
	}
}

// Check reports whether another request may spend. The first window whose
// spend meets its limit denies; otherwise the first window past the alert
// threshold is reported with AlertTriggered.
func (t *Tracker) Check(now time.Time) Status {
	var alert *Status
	for _, w := range t.windows {
		st := t.status(w, now)
		if !st.Allowed {
			return st
		}
		if st.AlertTriggered && alert == nil {
			alert = &st
		}
	}
	if alert != nil {
		return *alert
	}
	return Status{Allowed: true}
}

// Statuses returns the state of every configured window.
func (t *Tracker) Statuses(now time.Time) []Status {
	out := make([]Status, 0, len(t.windows))
	for _, w := range t.windows {
		out = append(out, t.status(w, now))
	}
	return out
}

// Reset clears all windows.
func (t *Tracker) Reset() {
	for _, w := range t.windows {
		w.rw.Reset()
	}
}

func (t *Tracker) status(w *limitWindow, now time.Time) Status {
	used := w.rw.SumAt(now)
	pct := used / w.limit
	st := Status{
		Allowed:        used < w.limit,
		Name:           w.name,
		Limit:          w.limit,
		Used:           used,
		Remaining:      max(0, w.limit-used),
		Percentage:     pct,
		Reset:          w.rw.ResetAt(now),
		Window:         w.rw.Duration(),
		AlertTriggered: t.config.AlertThreshold > 0 && pct >= t.config.AlertThreshold,
	}
	if !st.Allowed {
		st.Reason = fmt.Sprintf("%s budget of $%.2f reached ($%.2f spent)", w.name, w.limit, used)
	}
	return st
}
