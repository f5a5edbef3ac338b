package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/metrics"
	"github.com/cwbudde/antcolonytsp/internal/store"
)

// runJob executes a solve job in the background.
// If jobStore is not nil the job writes a JSONL trace, its final result, and,
// when CheckpointInterval > 0, a checkpoint every CheckpointInterval
// iterations and on cancellation. A non-nil snap resumes from saved state.
// The terminal state is recorded last: a terminal job may be restarted at once.
func runJob(ctx context.Context, jm *JobManager, jobStore store.Store, jobID string, w *worker, snap *aco.Snapshot) error {
	defer jm.releaseCancel(jobID, w)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Cancelled before the worker got scheduled
	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		broadcastFinal(jm, jobID, 0)
		return ctx.Err()
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		if snap != nil {
			j.ResumedFrom = snap.Iteration
		}
	})
	if err != nil {
		return err
	}

	cities, err := loadJobCities(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		broadcastFinal(jm, jobID, 0)
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"cities", len(cities),
		"ants", job.Config.Ants,
		"iterations", job.Config.Iterations,
	)

	var trace *store.TraceWriter
	closeTrace := func() {
		if trace == nil {
			return
		}
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
		}
		trace = nil
	}
	defer closeTrace()

	if jobStore != nil {
		trace, err = store.NewTraceWriter(jobStore.JobDir(jobID), snap != nil)
		if err != nil {
			trace = nil
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		}
	}

	var solver *aco.Solver
	observer := func(stats aco.IterationStats) {
		best := solver.Best()
		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = stats.Iteration
			j.BestLength = stats.BestLength
			if stats.Improved {
				j.BestTour = best.Tour
			}
		})

		metrics.IterationsTotal.Inc()
		metrics.BestLength.WithLabelValues(jobID).Set(stats.BestLength)

		if trace != nil {
			var tour []int
			if stats.Improved {
				tour = best.Tour
			}
			if err := trace.Write(store.NewTraceEntry(stats, tour)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}

		if jobStore != nil && job.Config.CheckpointInterval > 0 && stats.Iteration%job.Config.CheckpointInterval == 0 {
			if err := saveCheckpoint(jobStore, jobID, solver.Snapshot(), job.Config); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}

	opts := []aco.Option{aco.WithObserver(observer)}
	if snap != nil {
		opts = append(opts, aco.WithSnapshot(snap))
	}
	solver, err = aco.NewSolver(cities, job.Config.Config, opts...)
	if err != nil {
		closeTrace()
		markJobFailed(jm, jobID, err)
		broadcastFinal(jm, jobID, 0)
		return err
	}

	// Start progress monitoring goroutine
	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	result, runErr := solver.Run(ctx)
	close(progressDone)
	elapsed := time.Since(start)
	closeTrace()

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		if jobStore != nil && job.Config.CheckpointInterval > 0 && result.Iterations > 0 {
			if err := saveCheckpoint(jobStore, jobID, solver.Snapshot(), job.Config); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
		markJobCancelled(jm, jobID)
		broadcastFinal(jm, jobID, elapsed)
		return runErr
	}
	if runErr != nil {
		markJobFailed(jm, jobID, runErr)
		broadcastFinal(jm, jobID, elapsed)
		return runErr
	}

	if jobStore != nil {
		if err := jobStore.SaveResult(jobID, result); err != nil {
			slog.Error("Failed to save result", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestTour = result.Tour
		j.BestLength = result.Length
		j.Iterations = result.Iterations
		j.Converged = result.Converged
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"best_length", result.Length,
		"best_iteration", result.BestIteration,
		"iterations", result.Iterations,
		"converged", result.Converged,
	)

	broadcastFinal(jm, jobID, elapsed)
	return nil
}

// iterationRate returns iterations per second of the current run
func iterationRate(job *Job, elapsed time.Duration) float64 {
	done := job.Iterations - job.ResumedFrom
	if elapsed <= 0 || done <= 0 {
		return 0
	}
	return float64(done) / elapsed.Seconds()
}

func progressEvent(job *Job, elapsed time.Duration) ProgressEvent {
	return ProgressEvent{
		JobID:               job.ID,
		State:               job.State,
		Iterations:          job.Iterations,
		TotalIterations:     job.Config.Iterations,
		BestLength:          job.BestLength,
		IterationsPerSecond: iterationRate(job, elapsed),
		Timestamp:           time.Now(),
	}
}

// broadcastFinal sends the terminal event of a run. It sends nothing once a
// restart has replaced the job with a new pending run.
func broadcastFinal(jm *JobManager, jobID string, elapsed time.Duration) {
	if job, ok := jm.GetJob(jobID); ok && job.State.Terminal() {
		jm.broadcaster.Broadcast(progressEvent(job, elapsed))
	}
}

// monitorProgress periodically broadcasts progress events during a run
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(progressEvent(job, time.Since(startTime)))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

// saveCheckpoint stores the solver state of a job
func saveCheckpoint(jobStore store.Store, jobID string, snap *aco.Snapshot, config JobConfig) error {
	if len(snap.BestTour) == 0 {
		slog.Debug("Skipping checkpoint, no tour yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(jobID, snap, config)
	if err := jobStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", snap.Iteration,
		"best_length", snap.BestLength,
	)
	return nil
}

// RunLocal runs one job to completion without the HTTP server, with the
// same trace, checkpoint and result handling as a served job.
func RunLocal(ctx context.Context, jobStore store.Store, jobID string, config JobConfig, snap *aco.Snapshot) (*Job, error) {
	jm := NewJobManager()
	jm.CreateJobWithID(jobID, config)

	err := runJob(ctx, jm, jobStore, jobID, nil, snap)
	job, _ := jm.GetJob(jobID)
	return job, err
}
