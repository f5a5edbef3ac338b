package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinMayflyPopulation is the smallest population the mayfly library accepts
const MinMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// Populations below MinMayflyPopulation are raised to it.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	if popSize < MinMayflyPopulation {
		popSize = MinMayflyPopulation
	}
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()

	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library takes scalar bounds; callers normalize to a common box
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]

	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, falling back to box center", "error", err)
		center := make([]float64, dim)
		for i := range center {
			center[i] = (lower[i] + upper[i]) / 2
		}
		return center, eval(center)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost
}
