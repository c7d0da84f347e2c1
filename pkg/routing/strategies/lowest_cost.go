package strategies

import (
	"math"
	"slices"

	"weaver-hq/loom/pkg/domain"
)

// costEpsilon is the tolerance under which two estimated costs tie.
const costEpsilon = 1e-9

type lowestCostStrategy struct{}

func (lowestCostStrategy) Kind() Kind { return LowestCost }

// Order sorts the tier by estimated cost, cheapest first. Runs of equal
// cost are ordered by a weighted draw.
func (lowestCostStrategy) Order(env *Env, tier []domain.Candidate) {
	for i := range tier {
		if env.Cost != nil {
			tier[i].Score = env.Cost(tier[i])
		} else {
			tier[i].Score = 0
		}
	}

	// Shuffle first so the stable sort leaves ties in weighted order.
	weightedShuffle(env.rand(), tier)
	slices.SortStableFunc(tier, func(a, b domain.Candidate) int {
		if math.Abs(a.Score-b.Score) < costEpsilon {
			return 0
		}
		if a.Score < b.Score {
			return -1
		}
		return 1
	})
}
