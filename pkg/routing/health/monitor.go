package health

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
)

// verdict is how an outcome affects a breaker.
type verdict int

const (
	neutral verdict = iota
	success
	failure
)

// verdictOf maps an attempt outcome to a breaker verdict. Caller
// cancellations are neutral. Fatal outcomes only count against the channel
// when the upstream rejected its credentials; a malformed request says
// nothing about the channel.
func verdictOf(o domain.Outcome) verdict {
	switch o.Kind {
	case domain.OutcomeSuccess:
		return success
	case domain.OutcomeTransient, domain.OutcomeInterrupted:
		return failure
	case domain.OutcomeFatal:
		if o.StatusCode == http.StatusUnauthorized || o.StatusCode == http.StatusForbidden {
			return failure
		}
		return neutral
	default:
		return neutral
	}
}

// source says where a verdict came from.
type source int

const (
	// fromRequest is an attempt that did not hold the half-open trial,
	// e.g. one admitted while the breaker was still closed.
	fromRequest source = iota
	fromTrial
	fromProbe
)

// Permit admits one attempt on a channel. It is handed out by Acquire and
// given back with Done or Release. Only a trial permit decides a half-open
// breaker.
type Permit struct {
	ChannelID string
	Trial     bool

	gen uint64
}

// breaker is the per-channel state machine. All fields are guarded by mu.
type breaker struct {
	mu sync.Mutex

	state    State
	failures int
	recent   []time.Time // times of the latest failures, at most FailureThreshold
	cooldown time.Duration
	changed  time.Time
	trial    bool
	gen      uint64
	trips    int

	lastSuccess time.Time
	lastFailure time.Time
	lastErr     string
}

type transition struct {
	from, to State
}

// Monitor tracks a circuit breaker per channel.
//
// Breakers live in a sync.Map keyed by channel ID and each one carries its
// own mutex, so concurrent requests against different channels never
// contend. Unknown channels are treated as closed.
//
// Eligibility is read without side effects by IsEligible. The dispatcher
// claims a channel with Acquire right before calling it, which is where an
// open breaker whose cooldown has elapsed moves to half-open and hands out
// its single trial.
type Monitor struct {
	cfg      Config
	breakers sync.Map // channel ID -> *breaker
	logger   *slog.Logger
	now      func() time.Time
}

// NewMonitor creates a monitor. Zero config fields take their defaults.
func NewMonitor(cfg Config) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:    cfg,
		logger: slog.Default().With("component", "health.monitor"),
		now:    time.Now,
	}
}

// Config returns the effective breaker parameters.
func (m *Monitor) Config() Config {
	return m.cfg
}

// IsEligible reports whether a channel may be offered to the dispatcher:
// closed, open with the cooldown elapsed, or half-open without a trial in
// flight.
func (m *Monitor) IsEligible(channelID string) bool {
	b := m.lookup(channelID)
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return m.eligibleLocked(b, m.now())
}

// Acquire claims the channel for one attempt. It returns false when the
// channel is open and cooling down, or half-open with its trial already
// taken. On a half-open channel the permit is the trial, which must be
// resolved with Done or Release.
func (m *Monitor) Acquire(channelID string) (Permit, bool) {
	b := m.breaker(channelID)
	now := m.now()
	p := Permit{ChannelID: channelID}

	b.mu.Lock()
	var tr *transition
	ok := false
	switch b.state {
	case Closed:
		ok = true
	case Open:
		if !now.Before(b.changed.Add(b.cooldown)) {
			tr = m.setLocked(b, HalfOpen, now)
			p = m.trialLocked(b, channelID)
			ok = true
		}
	case HalfOpen:
		if !b.trial {
			p = m.trialLocked(b, channelID)
			ok = true
		}
	}
	b.mu.Unlock()

	m.notify(channelID, tr)
	return p, ok
}

func (m *Monitor) trialLocked(b *breaker, channelID string) Permit {
	b.trial = true
	b.gen++
	return Permit{ChannelID: channelID, Trial: true, gen: b.gen}
}

// Release gives back a permit without a verdict, e.g. after the caller
// cancelled. A released trial can be handed out again.
func (m *Monitor) Release(p Permit) {
	if !p.Trial {
		return
	}
	b := m.lookup(p.ChannelID)
	if b == nil {
		return
	}
	b.mu.Lock()
	if m.ownsTrialLocked(b, p) {
		b.trial = false
	}
	b.mu.Unlock()
}

// Done resolves a permit with the outcome of the attempt it admitted.
func (m *Monitor) Done(p Permit, o domain.Outcome) {
	src := fromRequest
	if p.Trial {
		src = fromTrial
	}
	m.record(p.ChannelID, verdictOf(o), o.Error, src, p.gen)
}

// RecordOutcome feeds one request attempt that did not hold a trial into
// the channel's breaker. While half-open such outcomes are ignored.
func (m *Monitor) RecordOutcome(channelID string, o domain.Outcome) {
	m.record(channelID, verdictOf(o), o.Error, fromRequest, 0)
}

// ownsTrialLocked reports whether p is the trial currently in flight.
func (m *Monitor) ownsTrialLocked(b *breaker, p Permit) bool {
	return p.Trial && b.state == HalfOpen && b.trial && b.gen == p.gen
}

// RecordProbe feeds one active probe result into the channel's breaker. A
// failed probe opens a closed breaker immediately. On an open breaker whose
// cooldown has elapsed, or a half-open breaker with no trial in flight, the
// probe acts as the trial.
func (m *Monitor) RecordProbe(channelID string, err error) {
	if err != nil {
		m.record(channelID, failure, err.Error(), fromProbe, 0)
		return
	}
	m.record(channelID, success, "", fromProbe, 0)
}

func (m *Monitor) record(channelID string, v verdict, errMsg string, src source, gen uint64) {
	b := m.breaker(channelID)
	now := m.now()
	probe := src == fromProbe

	b.mu.Lock()
	// A trial that lost its slot (released, or decided by a probe) counts
	// as an ordinary late request.
	if src == fromTrial && !m.ownsTrialLocked(b, Permit{ChannelID: channelID, Trial: true, gen: gen}) {
		src = fromRequest
	}

	var tr *transition
	switch v {
	case success:
		b.lastSuccess = now
		tr = m.onSuccessLocked(b, now, src)
	case failure:
		b.lastFailure = now
		b.lastErr = errMsg
		tr = m.onFailureLocked(b, now, src)
	default:
		if src == fromTrial {
			b.trial = false
		}
	}
	failures, cooldown := b.failures, b.cooldown
	b.mu.Unlock()

	if tr != nil {
		switch tr.to {
		case Open:
			m.logger.Warn("circuit opened",
				"channel", channelID,
				"from", tr.from.String(),
				"consecutive_failures", failures,
				"cooldown", cooldown,
				"probe", probe,
				"error", errMsg,
			)
		case Closed:
			m.logger.Info("circuit closed",
				"channel", channelID,
				"probe", probe,
			)
		}
	}
	m.notify(channelID, tr)
}

// decidesHalfOpen reports whether a verdict from src settles a half-open
// breaker: the trial always does, a probe only when no trial is in flight.
func decidesHalfOpen(b *breaker, src source) bool {
	switch src {
	case fromTrial:
		return true
	case fromProbe:
		return !b.trial
	default:
		return false
	}
}

func (m *Monitor) onSuccessLocked(b *breaker, now time.Time, src source) *transition {
	switch b.state {
	case Closed:
		b.failures = 0
		b.recent = b.recent[:0]
		return nil
	case HalfOpen:
		if !decidesHalfOpen(b, src) {
			return nil
		}
		return m.closeLocked(b, now)
	case Open:
		// A request that started before the breaker opened can finish
		// late. Only a probe past the cooldown may close it.
		if src == fromProbe && !now.Before(b.changed.Add(b.cooldown)) {
			return m.closeLocked(b, now)
		}
	}
	return nil
}

func (m *Monitor) onFailureLocked(b *breaker, now time.Time, src source) *transition {
	switch b.state {
	case Closed:
		if src == fromProbe {
			b.failures++
			b.cooldown = m.cfg.BaseCooldown
			return m.setLocked(b, Open, now)
		}
		if m.countFailureLocked(b, now) {
			b.cooldown = m.cfg.BaseCooldown
			return m.setLocked(b, Open, now)
		}
	case HalfOpen:
		if !decidesHalfOpen(b, src) {
			return nil
		}
		b.failures++
		return m.reopenLocked(b, now)
	case Open:
		b.failures++
		if src == fromProbe && !now.Before(b.changed.Add(b.cooldown)) {
			return m.reopenLocked(b, now)
		}
	}
	return nil
}

// countFailureLocked adds a failure to a closed breaker and reports whether
// the last FailureThreshold consecutive failures all fall within
// FailureWindow. A failure after a quiet period longer than the window
// starts a new run.
func (m *Monitor) countFailureLocked(b *breaker, now time.Time) bool {
	window := m.cfg.FailureWindow
	if n := len(b.recent); n > 0 && window > 0 && now.Sub(b.recent[n-1]) > window {
		b.failures = 0
		b.recent = b.recent[:0]
	}
	b.failures++
	b.recent = append(b.recent, now)
	if over := len(b.recent) - m.cfg.FailureThreshold; over > 0 {
		b.recent = append(b.recent[:0], b.recent[over:]...)
	}
	if len(b.recent) < m.cfg.FailureThreshold {
		return false
	}
	return window <= 0 || now.Sub(b.recent[0]) <= window
}

func (m *Monitor) closeLocked(b *breaker, now time.Time) *transition {
	b.failures = 0
	b.recent = b.recent[:0]
	b.cooldown = 0
	b.trial = false
	return m.setLocked(b, Closed, now)
}

// reopenLocked opens the breaker again after a failed trial with a doubled
// cooldown, capped at MaxCooldown.
func (m *Monitor) reopenLocked(b *breaker, now time.Time) *transition {
	next := b.cooldown * 2
	if next < m.cfg.BaseCooldown {
		next = m.cfg.BaseCooldown
	}
	if next > m.cfg.MaxCooldown {
		next = m.cfg.MaxCooldown
	}
	b.cooldown = next
	b.trial = false
	return m.setLocked(b, Open, now)
}

func (m *Monitor) setLocked(b *breaker, to State, now time.Time) *transition {
	from := b.state
	b.state = to
	b.changed = now
	if to == Open {
		b.trips++
	}
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (m *Monitor) eligibleLocked(b *breaker, now time.Time) bool {
	switch b.state {
	case Closed:
		return true
	case Open:
		return !now.Before(b.changed.Add(b.cooldown))
	case HalfOpen:
		return !b.trial
	default:
		return false
	}
}

func (m *Monitor) notify(channelID string, tr *transition) {
	if tr == nil || m.cfg.OnTransition == nil {
		return
	}
	m.cfg.OnTransition(channelID, tr.from, tr.to)
}

// Health returns a view of one channel's breaker.
func (m *Monitor) Health(channelID string) ChannelHealth {
	b := m.lookup(channelID)
	if b == nil {
		return ChannelHealth{ChannelID: channelID, State: Closed, Eligible: true}
	}
	return m.view(channelID, b)
}

// Snapshot returns a view of every tracked breaker, sorted by channel ID.
func (m *Monitor) Snapshot() []ChannelHealth {
	var out []ChannelHealth
	m.breakers.Range(func(k, v any) bool {
		out = append(out, m.view(k.(string), v.(*breaker)))
		return true
	})
	slices.SortFunc(out, func(a, b ChannelHealth) int {
		return strings.Compare(a.ChannelID, b.ChannelID)
	})
	return out
}

// Forget drops a channel's breaker.
func (m *Monitor) Forget(channelID string) {
	m.breakers.Delete(channelID)
}

func (m *Monitor) view(channelID string, b *breaker) ChannelHealth {
	now := m.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	h := ChannelHealth{
		ChannelID:           channelID,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		Cooldown:            b.cooldown,
		LastTransition:      b.changed,
		TrialInFlight:       b.trial,
		Trips:               b.trips,
		LastSuccess:         b.lastSuccess,
		LastFailure:         b.lastFailure,
		LastError:           b.lastErr,
		Eligible:            m.eligibleLocked(b, now),
	}
	if b.state == Open {
		h.RetryAt = b.changed.Add(b.cooldown)
	}
	return h
}

func (m *Monitor) lookup(channelID string) *breaker {
	if v, ok := m.breakers.Load(channelID); ok {
		return v.(*breaker)
	}
	return nil
}

func (m *Monitor) breaker(channelID string) *breaker {
	if b := m.lookup(channelID); b != nil {
		return b
	}
	v, _ := m.breakers.LoadOrStore(channelID, &breaker{state: Closed, changed: m.now()})
	return v.(*breaker)
}
