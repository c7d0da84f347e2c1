package strategies

import "weaver-hq/loom/pkg/domain"

type weightedStrategy struct{}

func (weightedStrategy) Kind() Kind { return Weighted }

// Order builds the tier order by repeated cumulative-weight draws without
// replacement: each position is filled with probability proportional to
// the weight of the channels not yet placed.
func (weightedStrategy) Order(env *Env, tier []domain.Candidate) {
	weightedShuffle(env.rand(), tier)
}

func weightedShuffle(r Rand, tier []domain.Candidate) {
	for i := 0; i < len(tier)-1; i++ {
		total := 0
		for _, c := range tier[i:] {
			total += weight(c)
		}

		target := r.Float64() * float64(total)
		pick := len(tier) - 1
		cumulative := 0.0
		for j := i; j < len(tier); j++ {
			cumulative += float64(weight(tier[j]))
			if target < cumulative {
				pick = j
				break
			}
		}
		tier[i], tier[pick] = tier[pick], tier[i]
	}
}
