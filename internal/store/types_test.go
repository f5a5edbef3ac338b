package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
)

func squareJobConfig() JobConfig {
	cfg := aco.DefaultConfig()
	cfg.Iterations = 50
	return JobConfig{
		Config: cfg,
		Cities: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
	}
}

func uniformPheromone(n int, v float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			if i != j {
				rows[i][j] = v
			}
		}
	}
	return rows
}

func validCheckpoint(jobID string) *Checkpoint {
	return &Checkpoint{
		JobID:      jobID,
		BestTour:   []int{0, 1, 2, 3},
		BestLength: 4,
		Iteration:  20,
		Pheromone:  uniformPheromone(4, 0.25),
		Timestamp:  time.Date(2025, 10, 23, 10, 30, 0, 0, time.UTC),
		Config:     squareJobConfig(),
	}
}

func TestCheckpoint_JSONSerialization(t *testing.T) {
	original := validCheckpoint("test-job-123")

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal checkpoint: %v", err)
	}

	var restored Checkpoint
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal checkpoint: %v", err)
	}

	if restored.JobID != original.JobID {
		t.Errorf("JobID mismatch: expected %s, got %s", original.JobID, restored.JobID)
	}
	if restored.BestLength != original.BestLength {
		t.Errorf("BestLength mismatch: expected %f, got %f", original.BestLength, restored.BestLength)
	}
	if restored.Iteration != original.Iteration {
		t.Errorf("Iteration mismatch: expected %d, got %d", original.Iteration, restored.Iteration)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, restored.Timestamp)
	}
	for i := range original.BestTour {
		if restored.BestTour[i] != original.BestTour[i] {
			t.Errorf("BestTour[%d] mismatch: expected %d, got %d", i, original.BestTour[i], restored.BestTour[i])
		}
	}
	if restored.Pheromone[0][1] != 0.25 {
		t.Errorf("Pheromone[0][1] mismatch: expected 0.25, got %f", restored.Pheromone[0][1])
	}
	if restored.Config.Ants != original.Config.Ants {
		t.Errorf("Config.Ants mismatch: expected %d, got %d", original.Config.Ants, restored.Config.Ants)
	}
	if len(restored.Config.Cities) != 4 {
		t.Errorf("Config.Cities length: expected 4, got %d", len(restored.Config.Cities))
	}
}

func TestJobConfig_FlattensColonyParameters(t *testing.T) {
	data, err := json.Marshal(squareJobConfig())
	if err != nil {
		t.Fatalf("Failed to marshal job config: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal into map: %v", err)
	}

	for _, key := range []string{"ants", "iterations", "alpha", "beta", "evaporation", "cities"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected top-level key %q in %s", key, data)
		}
	}
}

func TestCheckpoint_Validate_Valid(t *testing.T) {
	if err := validCheckpoint("valid-job").Validate(); err != nil {
		t.Errorf("Valid checkpoint should not have validation error: %v", err)
	}
}

func TestCheckpoint_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Checkpoint)
		field  string
	}{
		{"empty job id", func(c *Checkpoint) { c.JobID = "" }, "JobID"},
		{"short tour", func(c *Checkpoint) { c.BestTour = []int{0} }, "BestTour"},
		{"repeated city", func(c *Checkpoint) { c.BestTour = []int{0, 1, 1, 3} }, "BestTour"},
		{"negative length", func(c *Checkpoint) { c.BestLength = -1 }, "BestLength"},
		{"negative iteration", func(c *Checkpoint) { c.Iteration = -5 }, "Iteration"},
		{"best iteration ahead", func(c *Checkpoint) { c.BestIteration = c.Iteration + 1 }, "BestIteration"},
		{"pheromone rows", func(c *Checkpoint) { c.Pheromone = uniformPheromone(3, 0.1) }, "Pheromone"},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, "Timestamp"},
		{"no cities", func(c *Checkpoint) { c.Config.Cities = nil }, "Config.Cities"},
		{"city count", func(c *Checkpoint) { c.Config.Cities = c.Config.Cities[:3] }, "Config.Cities"},
		{"bad colony config", func(c *Checkpoint) { c.Config.Ants = 0 }, "Config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkpoint := validCheckpoint("job")
			tt.mutate(checkpoint)

			err := checkpoint.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Expected ValidationError, got %T", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, validationErr.Field)
			}
		})
	}
}

func TestCheckpoint_IsCompatible_Compatible(t *testing.T) {
	checkpoint := validCheckpoint("job")

	config := squareJobConfig()
	config.Iterations = 500
	config.Alpha = 2

	if err := checkpoint.IsCompatible(config); err != nil {
		t.Errorf("Parameter changes should stay compatible: %v", err)
	}
}

func TestCheckpoint_IsCompatible_DifferentCities(t *testing.T) {
	checkpoint := validCheckpoint("job")

	config := squareJobConfig()
	config.Cities[2] = [2]float64{2, 2}

	err := checkpoint.IsCompatible(config)
	var compatErr *CompatibilityError
	if !errors.As(err, &compatErr) {
		t.Fatalf("Expected CompatibilityError, got %v", err)
	}
	if compatErr.Field != "Cities[2]" {
		t.Errorf("Expected field Cities[2], got %s", compatErr.Field)
	}
}

func TestCheckpoint_IsCompatible_DifferentCityCount(t *testing.T) {
	checkpoint := validCheckpoint("job")

	config := squareJobConfig()
	config.Cities = append(config.Cities, [2]float64{5, 5})

	var compatErr *CompatibilityError
	if !errors.As(checkpoint.IsCompatible(config), &compatErr) || compatErr.Field != "Cities" {
		t.Errorf("Expected Cities CompatibilityError, got %v", compatErr)
	}
}

func TestCheckpoint_IsCompatible_DifferentTourPolicy(t *testing.T) {
	checkpoint := validCheckpoint("job")

	config := squareJobConfig()
	config.Tour = aco.TourOpen

	var compatErr *CompatibilityError
	if !errors.As(checkpoint.IsCompatible(config), &compatErr) || compatErr.Field != "Tour" {
		t.Errorf("Expected Tour CompatibilityError, got %v", compatErr)
	}
}

func TestCheckpointInfo_FromCheckpoint(t *testing.T) {
	checkpoint := validCheckpoint("info-job")
	checkpoint.Config.Tour = ""

	info := checkpoint.ToInfo()

	if info.JobID != "info-job" {
		t.Errorf("JobID mismatch: got %s", info.JobID)
	}
	if info.BestLength != 4 {
		t.Errorf("BestLength mismatch: got %f", info.BestLength)
	}
	if info.Iteration != 20 || info.Iterations != 50 {
		t.Errorf("Progress mismatch: got %d/%d", info.Iteration, info.Iterations)
	}
	if info.Cities != 4 {
		t.Errorf("Cities mismatch: got %d", info.Cities)
	}
	if info.Tour != "closed" {
		t.Errorf("Empty tour policy should report closed, got %s", info.Tour)
	}
}

func TestNewCheckpoint_RoundTripsSnapshot(t *testing.T) {
	snap := &aco.Snapshot{
		Iteration:     7,
		BestIteration: 4,
		BestTour:      []int{2, 0, 3, 1},
		BestLength:    4.83,
		Pheromone:     uniformPheromone(4, 0.5),
	}

	checkpoint := NewCheckpoint("snap-job", snap, squareJobConfig())
	if checkpoint.Timestamp.IsZero() {
		t.Error("NewCheckpoint should set the timestamp")
	}

	back := checkpoint.Snapshot()
	if back.Iteration != 7 || back.BestIteration != 4 || back.BestLength != 4.83 {
		t.Errorf("Snapshot mismatch: %+v", back)
	}
	if back.BestTour[0] != 2 || len(back.Pheromone) != 4 {
		t.Errorf("Snapshot tour or pheromone mismatch: %+v", back)
	}
}
