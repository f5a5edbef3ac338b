// Package server runs solve jobs in the background and exposes them over a
// JSON HTTP API with server-sent progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/config"
	"github.com/cwbudde/antcolonytsp/internal/metrics"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	cfg        config.Server
	limiter    *rate.Limiter
	defaults   aco.Config
	server     *http.Server

	// ctx is the parent of every job context; Shutdown cancels it
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. jobStore may be nil, in which case
// jobs keep their state in memory only.
func NewServer(cfg config.Server, defaults aco.Config, jobStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      jobStore,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.JobRate), cfg.JobBurst),
		defaults:   defaults,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.jobManager.CancelAll()
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// SubmitJob registers a job and starts its worker
func (s *Server) SubmitJob(config JobConfig) *Job {
	job := s.jobManager.CreateJob(config)
	ctx, cancel := context.WithCancel(s.ctx)
	w := s.jobManager.SetCancel(job.ID, cancel)
	go runJob(ctx, s.jobManager, s.store, job.ID, w, nil)
	return job
}

// ResumeJob restarts a checkpointed job under its original ID
func (s *Server) ResumeJob(checkpoint *store.Checkpoint) (*Job, error) {
	if err := checkpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	job, w, err := s.jobManager.RestartJob(checkpoint.JobID, checkpoint.Config, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	go runJob(ctx, s.jobManager, s.store, job.ID, w, checkpoint.Snapshot())
	return job, nil
}

// RemoveJob deletes a finished job together with its stored artifacts
func (s *Server) RemoveJob(jobID string) error {
	if err := s.jobManager.RemoveJob(jobID); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.DeleteCheckpoint(jobID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	slog.Info("Job removed", "job_id", jobID)
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	if sub == "cancel" || sub == "resume" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
	} else if sub == "" && r.Method == http.MethodDelete {
		s.handleDeleteJob(w, r, jobID)
		return
	} else if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "tour":
		s.handleGetTour(w, r, jobID)
	case "trace":
		s.handleGetTrace(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	case "resume":
		s.handleResumeJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs.
// Parameters omitted from the body take the server defaults.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		metrics.RejectedJobs.Inc()
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many job submissions")
		return
	}

	config := JobConfig{Config: s.defaults}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if err := config.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cities, err := loadJobCities(config)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := aco.NewDistanceMatrix(cities); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if config.CheckpointInterval == 0 {
		config.CheckpointInterval = s.cfg.CheckpointInterval
	}

	job := s.SubmitJob(config)
	slog.Info("Job submitted", "job_id", job.ID, "cities", len(cities))
	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()
	summaries := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, map[string]any{
			"id":         job.ID,
			"state":      job.State,
			"bestLength": job.BestLength,
			"iterations": job.Iterations,
			"startTime":  job.StartTime,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	progress := 0.0
	if job.Config.Iterations > 0 {
		progress = float64(job.Iterations) / float64(job.Config.Iterations)
	}

	response := map[string]any{
		"id":                  job.ID,
		"state":               job.State,
		"config":              job.Config,
		"bestLength":          job.BestLength,
		"bestTour":            job.BestTour,
		"iterations":          job.Iterations,
		"progress":            progress,
		"converged":           job.Converged,
		"resumedFrom":         job.ResumedFrom,
		"elapsed":             elapsed.Seconds(),
		"iterationsPerSecond": iterationRate(job, elapsed),
		"startTime":           job.StartTime,
		"endTime":             job.EndTime,
		"error":               job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetTour handles GET /api/v1/jobs/:id/tour.
// The tour is returned both as indices and as coordinates in visiting order.
func (s *Server) handleGetTour(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if len(job.BestTour) == 0 {
		http.Error(w, "No tour yet", http.StatusNotFound)
		return
	}

	cities, err := loadJobCities(job.Config)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(cities) != len(job.BestTour) {
		writeError(w, http.StatusConflict, fmt.Sprintf(
			"cities changed since the job ran: %d cities for a %d city tour", len(cities), len(job.BestTour)))
		return
	}

	path := make([][2]float64, 0, len(job.BestTour)+1)
	for _, c := range job.BestTour {
		path = append(path, [2]float64{cities[c].X, cities[c].Y})
	}
	if job.Config.Closed() {
		path = append(path, path[0])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tour":   job.BestTour,
		"length": job.BestLength,
		"closed": job.Config.Closed(),
		"path":   path,
	})
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace.
// An optional ?since=N query returns only iterations after N.
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.store == nil {
		http.Error(w, "No store configured", http.StatusNotFound)
		return
	}

	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	entries, err := store.ReadTrace(s.store.JobDir(jobID))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filtered := make([]store.TraceEntry, 0, len(entries))
	for _, e := range entries {
		if e.Iteration > since {
			filtered = append(filtered, e)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

// handleDeleteJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.RemoveJob(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeJob handles POST /api/v1/jobs/:id/resume from the stored checkpoint
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.store == nil {
		http.Error(w, "No store configured", http.StatusNotFound)
		return
	}

	checkpoint, err := s.store.LoadCheckpoint(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Checkpoint not found", http.StatusNotFound)
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.ResumeJob(checkpoint)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"runningJobs": len(s.jobManager.GetRunningJobs()),
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routeLabel(r.URL.Path)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", wrapped.statusCode, "duration", duration)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// jobSubRoutes are the routes below /api/v1/jobs/{id}/
var jobSubRoutes = map[string]bool{
	"status": true,
	"tour":   true,
	"trace":  true,
	"stream": true,
	"cancel": true,
	"resume": true,
}

// routeLabel maps a request path to one of a fixed set of metric labels.
// Unknown paths share the label "other".
func routeLabel(path string) string {
	switch path {
	case "/api/v1/jobs", "/metrics", "/healthz":
		return path
	}

	rest, ok := strings.CutPrefix(path, "/api/v1/jobs/")
	if !ok || rest == "" {
		return "other"
	}
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		return "other"
	}
	sub, _, _ = strings.Cut(sub, "/")
	if sub == "" {
		return "/api/v1/jobs/{id}"
	}
	if jobSubRoutes[sub] {
		return "/api/v1/jobs/{id}/" + sub
	}
	return "other"
}

// responseWrapper captures the status code and keeps streaming working
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
