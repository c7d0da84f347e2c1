package strategies

import "weaver-hq/loom/pkg/domain"

type randomStrategy struct{}

func (randomStrategy) Kind() Kind { return Random }

// Order applies a Fisher-Yates shuffle.
func (randomStrategy) Order(env *Env, tier []domain.Candidate) {
	r := env.rand()
	for i := len(tier) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		tier[i], tier[j] = tier[j], tier[i]
	}
}
