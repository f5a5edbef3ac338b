package aco

import (
	"log/slog"
	"math"
)

// ConvergenceTracker watches the best tour length and reports when it has
// stopped improving.
type ConvergenceTracker struct {
	patience        int
	threshold       float64
	history         []float64
	bestLength      float64 // Best length ever seen
	lastSignificant float64 // Last length that was a significant improvement
	staleCount      int     // Iterations without significant improvement
}

// NewConvergenceTracker creates a tracker that converges after patience
// iterations whose relative improvement stays below threshold.
func NewConvergenceTracker(patience int, threshold float64) *ConvergenceTracker {
	return &ConvergenceTracker{
		patience:        patience,
		threshold:       threshold,
		bestLength:      math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the best length after an iteration and returns true once
// convergence is detected.
func (c *ConvergenceTracker) Update(length float64) bool {
	c.history = append(c.history, length)

	if length < c.bestLength {
		c.bestLength = length
	}

	if len(c.history) == 1 {
		c.lastSignificant = length
		return false
	}

	improvement := (c.lastSignificant - length) / c.lastSignificant
	if improvement > 0 && improvement >= c.threshold {
		c.lastSignificant = length
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.patience,
			"best_length", c.bestLength,
		)
		return true
	}
	return false
}

// BestLength returns the best length seen so far
func (c *ConvergenceTracker) BestLength() float64 {
	return c.bestLength
}

// StaleCount returns the current number of iterations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// History returns a copy of the recorded lengths
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}
