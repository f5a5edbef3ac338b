package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
)

// JobConfig describes a solve job. The colony parameters are embedded so
// that they appear as top-level JSON fields.
// It lives here rather than in the server package to avoid an import cycle.
type JobConfig struct {
	aco.Config

	// Cities are inline [x, y] pairs; CitiesPath names a coordinate file.
	// Exactly one of them is expected.
	Cities     [][2]float64 `json:"cities,omitempty"`
	CitiesPath string       `json:"citiesPath,omitempty"`

	CheckpointInterval int `json:"checkpointInterval,omitempty"` // Checkpoint every N iterations (0 = disabled)
}

// CityCount returns the number of inline cities, or 0 for file-based jobs
func (c JobConfig) CityCount() int {
	return len(c.Cities)
}

// Checkpoint is the saved state of a solve job.
//
// Unlike a plain best-so-far record it carries the full pheromone matrix, so
// a resumed run continues with the colony's learned edge preferences. The
// random stream is not saved: a resumed run reseeds from Config.Seed and
// diverges from an uninterrupted run of the same seed.
type Checkpoint struct {
	JobID string `json:"jobId"`

	// BestTour is the best permutation found so far and BestLength its length
	BestTour   []int   `json:"bestTour"`
	BestLength float64 `json:"bestLength"`

	// Iteration is the number of completed iterations
	Iteration int `json:"iteration"`

	// BestIteration is the iteration that found BestTour
	BestIteration int `json:"bestIteration,omitempty"`

	// Pheromone holds the n x n matrix rows at checkpoint time
	Pheromone [][]float64 `json:"pheromone"`

	Timestamp time.Time `json:"timestamp"`

	// Config is needed to rebuild the solver on resume
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the matrix.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	BestLength float64   `json:"bestLength"`
	Iteration  int       `json:"iteration"`
	Iterations int       `json:"iterations"`
	Cities     int       `json:"cities"`
	Tour       string    `json:"tour"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCheckpoint creates a checkpoint from a solver snapshot
func NewCheckpoint(jobID string, snap *aco.Snapshot, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:         jobID,
		BestTour:      snap.BestTour,
		BestLength:    snap.BestLength,
		Iteration:     snap.Iteration,
		BestIteration: snap.BestIteration,
		Pheromone:     snap.Pheromone,
		Timestamp:     time.Now(),
		Config:        config,
	}
}

// Snapshot converts the checkpoint back to solver state
func (c *Checkpoint) Snapshot() *aco.Snapshot {
	return &aco.Snapshot{
		Iteration:     c.Iteration,
		BestIteration: c.BestIteration,
		BestTour:      c.BestTour,
		BestLength:    c.BestLength,
		Pheromone:     c.Pheromone,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	tour := c.Config.Tour
	if tour == "" {
		tour = aco.TourClosed
	}
	return CheckpointInfo{
		JobID:      c.JobID,
		BestLength: c.BestLength,
		Iteration:  c.Iteration,
		Iterations: c.Config.Iterations,
		Cities:     len(c.BestTour),
		Tour:       string(tour),
		Timestamp:  c.Timestamp,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.BestTour) < 2 {
		return &ValidationError{Field: "BestTour", Reason: "must contain at least 2 cities"}
	}
	if err := aco.ValidateTour(c.BestTour, len(c.BestTour)); err != nil {
		return &ValidationError{Field: "BestTour", Reason: err.Error()}
	}
	if c.BestLength < 0 || math.IsNaN(c.BestLength) || math.IsInf(c.BestLength, 0) {
		return &ValidationError{Field: "BestLength", Reason: "must be finite and non-negative"}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.BestIteration < 0 || c.BestIteration > c.Iteration {
		return &ValidationError{Field: "BestIteration", Reason: "must be within [0, Iteration]"}
	}
	if len(c.Pheromone) != len(c.BestTour) {
		return &ValidationError{
			Field:  "Pheromone",
			Reason: fmt.Sprintf("expected %d rows, got %d", len(c.BestTour), len(c.Pheromone)),
		}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if len(c.Config.Cities) == 0 && c.Config.CitiesPath == "" {
		return &ValidationError{Field: "Config.Cities", Reason: "cities or citiesPath required"}
	}
	if n := len(c.Config.Cities); n > 0 && n != len(c.BestTour) {
		return &ValidationError{
			Field:  "Config.Cities",
			Reason: fmt.Sprintf("length mismatch: %d cities for a %d city tour", n, len(c.BestTour)),
		}
	}
	if err := c.Config.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The city set and tour policy must match; other parameters may change.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.CitiesPath != config.CitiesPath {
		return &CompatibilityError{
			Field:    "CitiesPath",
			Expected: c.Config.CitiesPath,
			Actual:   config.CitiesPath,
		}
	}
	if len(c.Config.Cities) != len(config.Cities) {
		return &CompatibilityError{
			Field:    "Cities",
			Expected: fmt.Sprintf("%d cities", len(c.Config.Cities)),
			Actual:   fmt.Sprintf("%d cities", len(config.Cities)),
		}
	}
	for i := range config.Cities {
		if c.Config.Cities[i] != config.Cities[i] {
			return &CompatibilityError{
				Field:    fmt.Sprintf("Cities[%d]", i),
				Expected: fmt.Sprintf("%v", c.Config.Cities[i]),
				Actual:   fmt.Sprintf("%v", config.Cities[i]),
			}
		}
	}
	if c.Config.Closed() != config.Closed() {
		return &CompatibilityError{
			Field:    "Tour",
			Expected: string(c.Config.Tour),
			Actual:   string(config.Tour),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
