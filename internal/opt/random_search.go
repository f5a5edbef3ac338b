package opt

import (
	"math"
	"math/rand"
)

// RandomSearch samples the box uniformly and keeps the best point.
// It is the baseline the tune command compares Mayfly against.
type RandomSearch struct {
	evals int
	seed  int64
}

// NewRandomSearch creates a random search optimizer with a fixed budget
func NewRandomSearch(evals int, seed int64) Optimizer {
	return &RandomSearch{evals: evals, seed: seed}
}

// Run evaluates evals uniformly drawn points
func (r *RandomSearch) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	rng := rand.New(rand.NewSource(r.seed))

	best := make([]float64, dim)
	bestCost := math.Inf(1)
	x := make([]float64, dim)

	for k := 0; k < r.evals; k++ {
		for i := range x {
			x[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
		}
		if cost := eval(x); cost < bestCost {
			bestCost = cost
			copy(best, x)
		}
	}

	return best, bestCost
}
