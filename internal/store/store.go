package store

import "github.com/cwbudde/antcolonytsp/internal/aco"

// Store persists solver checkpoints so that jobs can be resumed.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a checkpoint doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint atomically saves a checkpoint for the given job,
	// overwriting any previous one.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given job.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// SaveResult stores the final result of a finished job.
	SaveResult(jobID string, result *aco.Result) error

	// LoadResult retrieves the final result of a job.
	// Returns ErrNotFound if the job has not finished.
	LoadResult(jobID string) (*aco.Result, error)

	// ListCheckpoints returns metadata for all available checkpoints.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and every artifact of the job
	// (checkpoint.json, result.json, trace.jsonl).
	DeleteCheckpoint(jobID string) error

	// JobDir returns the directory holding the artifacts of a job
	JobDir(jobID string) string
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
