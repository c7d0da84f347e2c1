package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"weaver-hq/loom/pkg/attemptlog"
	"weaver-hq/loom/pkg/domain"
)

// MaxLimit caps the page size of a single query.
const MaxLimit = 10000

// Params are the raw filter values.
type Params struct {
	RequestID string
	ChannelID string
	Model     string
	Outcome   string
	Since     string
	Until     string
	Limit     int
	Offset    int
	Order     string
}

// FromValues reads Params from URL query parameters.
func FromValues(v url.Values) (Params, error) {
	p := Params{
		RequestID: v.Get("request_id"),
		ChannelID: v.Get("channel_id"),
		Model:     v.Get("model"),
		Outcome:   v.Get("outcome"),
		Since:     v.Get("since"),
		Until:     v.Get("until"),
		Order:     v.Get("order"),
	}
	var err error
	if p.Limit, err = intParam(v, "limit"); err != nil {
		return p, err
	}
	if p.Offset, err = intParam(v, "offset"); err != nil {
		return p, err
	}
	return p, nil
}

// Build validates p and returns the query it describes, relative to now.
func (p Params) Build(now time.Time) (*attemptlog.Query, error) {
	q := &attemptlog.Query{
		RequestID: strings.TrimSpace(p.RequestID),
		ChannelID: strings.TrimSpace(p.ChannelID),
		Model:     strings.TrimSpace(p.Model),
		Limit:     p.Limit,
		Offset:    p.Offset,
		Order:     strings.ToLower(p.Order),
	}

	if p.Outcome != "" {
		kind := domain.OutcomeKind(strings.ToLower(p.Outcome))
		if !validOutcome(kind) {
			return nil, fmt.Errorf("%w: unknown outcome %q", attemptlog.ErrInvalidQuery, p.Outcome)
		}
		q.Outcome = kind
	}
	if p.Limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d, got %d", attemptlog.ErrInvalidQuery, MaxLimit, p.Limit)
	}

	var err error
	if q.Since, err = parseTime("since", p.Since, now); err != nil {
		return nil, err
	}
	if q.Until, err = parseTime("until", p.Until, now); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func validOutcome(k domain.OutcomeKind) bool {
	switch k {
	case domain.OutcomeSuccess, domain.OutcomeTransient, domain.OutcomeFatal,
		domain.OutcomeCanceled, domain.OutcomeInterrupted:
		return true
	}
	return false
}

// parseTime reads an RFC 3339 timestamp or a positive duration before now.
func parseTime(field, s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("%w: %s must be RFC 3339 or a positive duration, got %q", attemptlog.ErrInvalidQuery, field, s)
	}
	t := now.Add(-d)
	return &t, nil
}

func intParam(v url.Values, name string) (int, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", attemptlog.ErrInvalidQuery, name, s)
	}
	return n, nil
}
