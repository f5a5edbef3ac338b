package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwbudde/antcolonytsp/internal/aco"
)

const (
	checkpointFile = "checkpoint.json"
	resultFile     = "result.json"
)

// FSStore implements Store on the filesystem.
// Each job owns a directory <baseDir>/jobs/<jobID>/.
//
// Writes go to a temp file that is renamed into place, so readers never see
// a partial file and no locking is needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// JobDir returns the directory path for a given job ID.
func (fs *FSStore) JobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) jobFile(jobID, name string) string {
	return filepath.Join(fs.JobDir(jobID), name)
}

// writeJSON atomically replaces <jobDir>/<name> with v encoded as JSON
func (fs *FSStore) writeJSON(jobID, name string, v any) error {
	jobDir := fs.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", name, err)
	}

	finalPath := fs.jobFile(jobID, name)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return nil
}

// readJSON decodes <jobDir>/<name> into v, returning *NotFoundError if absent
func (fs *FSStore) readJSON(jobID, name string, v any) error {
	path := fs.jobFile(jobID, name)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", name, err)
	}
	return nil
}

// SaveCheckpoint atomically saves a checkpoint for the given job.
func (fs *FSStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	if err := fs.writeJSON(jobID, checkpointFile, checkpoint); err != nil {
		return err
	}

	slog.Debug("Checkpoint saved", "job_id", jobID, "iteration", checkpoint.Iteration)
	return nil
}

// LoadCheckpoint retrieves the checkpoint for the given job.
func (fs *FSStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var checkpoint Checkpoint
	if err := fs.readJSON(jobID, checkpointFile, &checkpoint); err != nil {
		return nil, err
	}

	slog.Debug("Checkpoint loaded", "job_id", jobID, "iteration", checkpoint.Iteration)
	return &checkpoint, nil
}

// SaveResult stores the final result of a job next to its checkpoint
func (fs *FSStore) SaveResult(jobID string, result *aco.Result) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	return fs.writeJSON(jobID, resultFile, result)
}

// LoadResult reads a result written by SaveResult
func (fs *FSStore) LoadResult(jobID string) (*aco.Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var result aco.Result
	if err := fs.readJSON(jobID, resultFile, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListCheckpoints returns metadata for all available checkpoints.
// Directories without a readable checkpoint are skipped.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.jobFile(jobID, checkpointFile)); os.IsNotExist(err) {
			continue
		}

		checkpoint, err := fs.LoadCheckpoint(jobID)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "job_id", jobID, "error", err)
			continue
		}

		infos = append(infos, checkpoint.ToInfo())
	}

	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

// DeleteCheckpoint removes the job directory and all of its artifacts.
func (fs *FSStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.JobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "job_id", jobID, "path", jobDir)
	return nil
}
