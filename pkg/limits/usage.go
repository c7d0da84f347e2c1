package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"weaver-hq/loom/pkg/limits/storage"
)

// DateLayout is the layout of usage period bounds.
const DateLayout = "2006-01-02"

// DefaultUsageDays is the length of a usage period with no start date.
const DefaultUsageDays = 30

// ErrInvalidPeriod is returned for malformed or inverted usage periods.
var ErrInvalidPeriod = errors.New("invalid usage period")

// Period is an inclusive range of UTC calendar days.
type Period struct {
	Start time.Time
	End   time.Time
}

// ParsePeriod reads YYYY-MM-DD bounds. A missing end is today; a missing
// start is DefaultUsageDays before the end.
func ParsePeriod(start, end string, now time.Time) (Period, error) {
	var p Period
	var err error

	if end = strings.TrimSpace(end); end == "" {
		p.End = day(now)
	} else if p.End, err = time.Parse(DateLayout, end); err != nil {
		return Period{}, fmt.Errorf("%w: end must be YYYY-MM-DD, got %q", ErrInvalidPeriod, end)
	}

	if start = strings.TrimSpace(start); start == "" {
		p.Start = p.End.AddDate(0, 0, -DefaultUsageDays)
	} else if p.Start, err = time.Parse(DateLayout, start); err != nil {
		return Period{}, fmt.Errorf("%w: start must be YYYY-MM-DD, got %q", ErrInvalidPeriod, start)
	}

	if p.Start.After(p.End) {
		return Period{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidPeriod,
			p.Start.Format(DateLayout), p.End.Format(DateLayout))
	}
	return p, nil
}

// Contains reports whether t falls on one of the period's days.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End.AddDate(0, 0, 1))
}

// String renders the period as "start..end".
func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

// MarshalJSON writes both bounds as dates.
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{p.Start.Format(DateLayout), p.End.Format(DateLayout)})
}

// ModelUsage is spend for one requested model.
type ModelUsage struct {
	Model            string  `json:"model"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

// DailyUsage is spend for one UTC day.
type DailyUsage struct {
	Date     string  `json:"date"`
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// UsageSummary is a tenant's committed spend over a period.
type UsageSummary struct {
	TenantID         string       `json:"tenant_id"`
	Period           Period       `json:"period"`
	Requests         int64        `json:"total_requests"`
	PromptTokens     int64        `json:"prompt_tokens"`
	CompletionTokens int64        `json:"completion_tokens"`
	Tokens           int64        `json:"total_tokens"`
	Cost             float64      `json:"total_cost"`
	ByModel          []ModelUsage `json:"by_model"`
	ByDay            []DailyUsage `json:"by_day"`
}

// Usage summarizes a tenant's spend from the ledger. Only committed
// requests count; reservations still in flight are reported by Status.
func (m *Manager) Usage(ctx context.Context, tenantID string, p Period) (*UsageSummary, error) {
	entries, err := m.ledger.Since(ctx, p.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to read spend ledger: %w", err)
	}
	return Summarize(entries, tenantID, p), nil
}

// Summarize totals the entries of tenantID inside p. Models are ordered
// by cost, highest first; days are in calendar order.
func Summarize(entries []storage.Entry, tenantID string, p Period) *UsageSummary {
	type bucket struct {
		requests, prompt, completion int64
		cost                         decimal.Decimal
	}
	add := func(b *bucket, e storage.Entry) {
		b.requests++
		b.prompt += int64(e.PromptTokens)
		b.completion += int64(e.CompletionTokens)
		b.cost = b.cost.Add(decimal.NewFromFloat(e.Cost))
	}

	var total bucket
	models := make(map[string]*bucket)
	days := make(map[string]*bucket)
	for _, e := range entries {
		if e.TenantID != tenantID || !p.Contains(e.CommittedAt) {
			continue
		}
		add(&total, e)

		mb, ok := models[e.Model]
		if !ok {
			mb = &bucket{}
			models[e.Model] = mb
		}
		add(mb, e)

		key := e.CommittedAt.UTC().Format(DateLayout)
		db, ok := days[key]
		if !ok {
			db = &bucket{}
			days[key] = db
		}
		add(db, e)
	}

	s := &UsageSummary{
		TenantID:         tenantID,
		Period:           p,
		Requests:         total.requests,
		PromptTokens:     total.prompt,
		CompletionTokens: total.completion,
		Tokens:           total.prompt + total.completion,
		Cost:             total.cost.InexactFloat64(),
		ByModel:          make([]ModelUsage, 0, len(models)),
		ByDay:            make([]DailyUsage, 0, len(days)),
	}
	for model, b := range models {
		s.ByModel = append(s.ByModel, ModelUsage{
			Model:            model,
			Requests:         b.requests,
			PromptTokens:     b.prompt,
			CompletionTokens: b.completion,
			Cost:             b.cost.InexactFloat64(),
		})
	}
	slices.SortFunc(s.ByModel, func(a, b ModelUsage) int {
		if a.Cost != b.Cost {
			if a.Cost > b.Cost {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Model, b.Model)
	})

	for date, b := range days {
		s.ByDay = append(s.ByDay, DailyUsage{
			Date:     date,
			Requests: b.requests,
			Tokens:   b.prompt + b.completion,
			Cost:     b.cost.InexactFloat64(),
		})
	}
	slices.SortFunc(s.ByDay, func(a, b DailyUsage) int { return strings.Compare(a.Date, b.Date) })
	return s
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
