// Package metrics exposes Prometheus collectors for the solve server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "antcolonytsp_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures handler latency. Stream requests are
	// long-lived and land in the top buckets.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "antcolonytsp_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "route"},
	)

	// Jobs tracks the number of jobs currently in each state.
	Jobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "antcolonytsp_jobs",
			Help: "Number of solve jobs by state",
		},
		[]string{"state"},
	)

	// IterationsTotal counts colony iterations across all jobs.
	IterationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antcolonytsp_iterations_total",
			Help: "Total number of colony iterations completed",
		},
	)

	// BestLength is the best tour length of each job.
	BestLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "antcolonytsp_best_tour_length",
			Help: "Best tour length found per job",
		},
		[]string{"job_id"},
	)

	// RejectedJobs counts submissions refused by the rate limiter.
	RejectedJobs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "antcolonytsp_jobs_rejected_total",
			Help: "Job submissions rejected by rate limiting",
		},
	)
)

// JobTransition moves one job from one state gauge to another.
// An empty from records a new job.
func JobTransition(from, to string) {
	if from != "" {
		Jobs.WithLabelValues(from).Dec()
	}
	Jobs.WithLabelValues(to).Inc()
}

// ForgetJob drops the per-job series of a removed job.
func ForgetJob(jobID string) {
	BestLength.DeleteLabelValues(jobID)
}
