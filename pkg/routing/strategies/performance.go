package strategies

import (
	"cmp"
	"slices"
	"strings"

	"weaver-hq/loom/pkg/domain"
)

// Performance score parameters.
const (
	// NeutralScore is assigned to channels without samples so they keep
	// being explored.
	NeutralScore = 0.5

	// DefaultErrorPenalty scales the error rate in the composite score.
	DefaultErrorPenalty = 1.0
)

type performanceStrategy struct{}

func (performanceStrategy) Kind() Kind { return Performance }

// Order sorts the tier by ascending composite score:
//
//	score = p95 / max(p95 in tier) + penalty * errorRate
//
// A channel whose window holds only failures has no latency to compare and
// takes the worst latency term, 1. Ties are broken by channel ID so the
// order is deterministic.
func (performanceStrategy) Order(env *Env, tier []domain.Candidate) {
	penalty := env.ErrorPenalty
	if penalty <= 0 {
		penalty = DefaultErrorPenalty
	}

	type sample struct {
		known   bool
		p95     float64
		errRate float64
	}
	samples := make([]sample, len(tier))
	var maxP95 float64
	for i, c := range tier {
		if env.Stats == nil {
			continue
		}
		st := env.Stats(c.ChannelID(), env.Model)
		if st.Samples == 0 {
			continue
		}
		samples[i] = sample{known: true, p95: float64(st.P95), errRate: st.ErrorRate}
		if st.ErrorRate < 1 {
			maxP95 = max(maxP95, float64(st.P95))
		}
	}

	for i := range tier {
		s := samples[i]
		if !s.known {
			tier[i].Score = NeutralScore
			continue
		}
		var latency float64
		switch {
		case s.errRate >= 1:
			latency = 1
		case maxP95 > 0:
			latency = s.p95 / maxP95
		}
		tier[i].Score = latency + penalty*s.errRate
	}

	slices.SortStableFunc(tier, func(a, b domain.Candidate) int {
		if c := cmp.Compare(a.Score, b.Score); c != 0 {
			return c
		}
		return strings.Compare(a.ChannelID(), b.ChannelID())
	})
}
