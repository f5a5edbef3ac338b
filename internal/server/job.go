package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/metrics"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether a job in this state will not change again
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job represents a solve job
type Job struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Config      JobConfig  `json:"config"`
	BestTour    []int      `json:"bestTour,omitempty"`
	BestLength  float64    `json:"bestLength"`
	Iterations  int        `json:"iterations"`
	ResumedFrom int        `json:"resumedFrom,omitempty"` // Iteration of the checkpoint the job started from
	Converged   bool       `json:"converged,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (j *Job) clone() *Job {
	cp := *j
	cp.BestTour = append([]int(nil), j.BestTour...)
	if j.EndTime != nil {
		end := *j.EndTime
		cp.EndTime = &end
	}
	return &cp
}

// worker is the cancel handle of one run of a job. Handles are compared by
// pointer, so a finished run only ever releases its own registration.
type worker struct {
	cancel context.CancelFunc
}

// JobManager manages the lifecycle of jobs.
// Getters return copies, so callers may read them without holding locks.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	workers     map[string]*worker
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		workers:     make(map[string]*worker),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new pending job with a fresh ID
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	return jm.CreateJobWithID(uuid.New().String(), config)
}

// CreateJobWithID registers a job under a known ID, as needed when resuming
// a checkpointed job. An existing job with the same ID is replaced.
func (jm *JobManager) CreateJobWithID(id string, config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.putJobLocked(id, config).clone()
}

// RestartJob replaces a finished job with a new pending run under the same
// ID and registers the run's cancel function. The state check and the
// replacement happen under one lock, so concurrent restarts of the same job
// cannot both succeed.
func (jm *JobManager) RestartJob(id string, config JobConfig, cancel context.CancelFunc) (*Job, *worker, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if old, exists := jm.jobs[id]; exists && !old.State.Terminal() {
		return nil, nil, fmt.Errorf("job %s is still %s", id, old.State)
	}

	job := jm.putJobLocked(id, config)
	w := &worker{cancel: cancel}
	jm.workers[id] = w
	return job.clone(), w, nil
}

func (jm *JobManager) putJobLocked(id string, config JobConfig) *Job {
	if old, exists := jm.jobs[id]; exists {
		metrics.Jobs.WithLabelValues(string(old.State)).Dec()
	}

	job := &Job{
		ID:        id,
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[id] = job
	metrics.JobTransition("", string(StatePending))
	return job
}

// RemoveJob forgets a finished job
func (jm *JobManager) RemoveJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if !job.State.Terminal() {
		return fmt.Errorf("job %s is still %s", id, job.State)
	}

	delete(jm.jobs, id)
	metrics.Jobs.WithLabelValues(string(job.State)).Dec()
	metrics.ForgetJob(id)
	jm.broadcaster.CleanupJob(id)
	return nil
}

// GetJob retrieves a copy of a job by ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns copies of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].StartTime.Before(jobs[b].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function.
// State changes are mirrored into the jobs gauge.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	before := job.State
	updateFn(job)
	if job.State != before {
		metrics.JobTransition(string(before), string(job.State))
	}
	return nil
}

// SetCancel registers the function that stops a job's worker. The returned
// handle is passed to the worker, which releases it when it exits.
func (jm *JobManager) SetCancel(id string, cancel context.CancelFunc) *worker {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	w := &worker{cancel: cancel}
	jm.workers[id] = w
	return w
}

// CancelJob stops a pending or running job. The worker records the
// cancelled state once it observes the cancellation.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.State)
	}

	w, ok := jm.workers[id]
	if !ok {
		return fmt.Errorf("job %s has no worker", id)
	}
	w.cancel()
	return nil
}

// CancelAll stops every active job
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for id, w := range jm.workers {
		if job, ok := jm.jobs[id]; ok && !job.State.Terminal() {
			w.cancel()
		}
	}
}

// releaseCancel frees the context of a finished run and unregisters it,
// unless a newer run of the same job has taken its place.
func (jm *JobManager) releaseCancel(id string, w *worker) {
	if w == nil {
		return
	}
	w.cancel()

	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.workers[id] == w {
		delete(jm.workers, id)
	}
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}
