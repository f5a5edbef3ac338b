package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/config"
	"github.com/cwbudde/antcolonytsp/internal/metrics"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestServer(t *testing.T, jobStore store.Store) *Server {
	t.Helper()
	s := NewServer(config.DefaultConfig().Server, aco.DefaultConfig(), jobStore)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func waitForState(t *testing.T, s *Server, jobID string, want JobState) *Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.jobManager.GetJob(jobID)
		if ok && job.State == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.jobManager.GetJob(jobID)
	t.Fatalf("Job %s did not reach %s, last state %+v", jobID, want, job)
	return nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case string:
		buf.WriteString(v)
	case nil:
	default:
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createJob(t *testing.T, s *Server, config JobConfig) *Job {
	t.Helper()
	w := postJSON(t, s.Handler(), "/api/v1/jobs", config)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return &job
}

func TestServer_CreateJob(t *testing.T) {
	s := newTestServer(t, nil)

	job := createJob(t, s, squareJob())
	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}

	done := waitForState(t, s, job.ID, StateCompleted)
	if done.BestLength != 4 {
		t.Errorf("Expected best length 4, got %f", done.BestLength)
	}
}

func TestServer_CreateJob_UsesDefaults(t *testing.T) {
	s := newTestServer(t, nil)

	w := postJSON(t, s.Handler(), "/api/v1/jobs", `{"cities": [[0,0],[3,4]], "iterations": 3}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	json.NewDecoder(w.Body).Decode(&job)
	if job.Config.Ants != 5 || job.Config.Beta != 5 || job.Config.Evaporation != 0.1 {
		t.Errorf("Omitted parameters should take defaults, got %+v", job.Config.Config)
	}
	if job.Config.Iterations != 3 {
		t.Errorf("Given parameter should be kept, got %d", job.Config.Iterations)
	}
	if job.Config.CheckpointInterval != config.DefaultConfig().Server.CheckpointInterval {
		t.Errorf("Checkpoint interval should default to the server setting, got %d", job.Config.CheckpointInterval)
	}

	done := waitForState(t, s, job.ID, StateCompleted)
	if done.BestLength != 10 {
		t.Errorf("Two cities 5 apart should give a closed length of 10, got %f", done.BestLength)
	}
}

func TestServer_CreateJob_ValidationErrors(t *testing.T) {
	tests := map[string]string{
		"invalid json":  `{"cities": [`,
		"unknown field": `{"cities": [[0,0],[1,1]], "antz": 3}`,
		"no cities":     `{"ants": 3}`,
		"one city":      `{"cities": [[0,0]]}`,
		"evaporation":   `{"cities": [[0,0],[1,1]], "evaporation": 1.5}`,
		"zero ants":     `{"cities": [[0,0],[1,1]], "ants": 0}`,
		"tour policy":   `{"cities": [[0,0],[1,1]], "tour": "spiral"}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := postJSON(t, s.Handler(), "/api/v1/jobs", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			if len(s.jobManager.ListJobs()) != 0 {
				t.Error("Rejected submissions must not create jobs")
			}
		})
	}
}

func TestServer_CreateJob_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.JobRate = 0.001
	cfg.JobBurst = 1
	s := NewServer(cfg, aco.DefaultConfig(), nil)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	first := postJSON(t, s.Handler(), "/api/v1/jobs", squareJob())
	if first.Code != http.StatusCreated {
		t.Fatalf("First submission should pass, got %d", first.Code)
	}

	second := postJSON(t, s.Handler(), "/api/v1/jobs", squareJob())
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Rate limited response should carry Retry-After")
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := newTestServer(t, nil)

	s.jobManager.CreateJob(squareJob())
	s.jobManager.CreateJob(squareJob())

	w := get(s.Handler(), "/api/v1/jobs")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var jobs []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := newTestServer(t, nil)
	job := createJob(t, s, squareJob())
	waitForState(t, s, job.ID, StateCompleted)

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		w := get(s.Handler(), path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}

		var status map[string]any
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode status: %v", err)
		}
		if status["id"] != job.ID {
			t.Errorf("Expected id %s, got %v", job.ID, status["id"])
		}
		if status["state"] != string(StateCompleted) {
			t.Errorf("Expected completed, got %v", status["state"])
		}
		if status["progress"] != 1.0 {
			t.Errorf("Expected progress 1, got %v", status["progress"])
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w := get(s.Handler(), "/api/v1/jobs/nonexistent/status")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetTour(t *testing.T) {
	s := newTestServer(t, nil)

	pending := s.jobManager.CreateJob(squareJob())
	if w := get(s.Handler(), "/api/v1/jobs/"+pending.ID+"/tour"); w.Code != http.StatusNotFound {
		t.Errorf("Tour of a job without results: expected 404, got %d", w.Code)
	}

	job := createJob(t, s, squareJob())
	waitForState(t, s, job.ID, StateCompleted)

	w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/tour")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var tour struct {
		Tour   []int        `json:"tour"`
		Length float64      `json:"length"`
		Closed bool         `json:"closed"`
		Path   [][2]float64 `json:"path"`
	}
	if err := json.NewDecoder(w.Body).Decode(&tour); err != nil {
		t.Fatalf("Failed to decode tour: %v", err)
	}
	if err := aco.ValidateTour(tour.Tour, 4); err != nil {
		t.Errorf("Invalid tour: %v", err)
	}
	if !tour.Closed || len(tour.Path) != 5 || tour.Path[0] != tour.Path[4] {
		t.Errorf("Closed path should return to its start: %+v", tour.Path)
	}
}

func TestServer_GetTrace(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	job := createJob(t, s, squareJob())
	waitForState(t, s, job.ID, StateCompleted)

	w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/trace?since=15")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var entries []store.TraceEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode trace: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("Expected 5 entries after iteration 15, got %d", len(entries))
	}

	if w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/trace?since=-1"); w.Code != http.StatusBadRequest {
		t.Errorf("Negative since: expected 400, got %d", w.Code)
	}
	if w := get(s.Handler(), "/api/v1/jobs/missing/trace"); w.Code != http.StatusNotFound {
		t.Errorf("Missing trace: expected 404, got %d", w.Code)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := newTestServer(t, nil)

	config := squareJob()
	config.Cities = randomPairs(40, 9)
	config.Iterations = 1_000_000
	job := createJob(t, s, config)

	w := postJSON(t, s.Handler(), "/api/v1/jobs/"+job.ID+"/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	waitForState(t, s, job.ID, StateCancelled)

	again := postJSON(t, s.Handler(), "/api/v1/jobs/"+job.ID+"/cancel", nil)
	if again.Code != http.StatusConflict {
		t.Errorf("Cancelling twice: expected 409, got %d", again.Code)
	}

	if w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/cancel"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET cancel: expected 405, got %d", w.Code)
	}
	if w := postJSON(t, s.Handler(), "/api/v1/jobs/missing/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("Unknown job: expected 404, got %d", w.Code)
	}
}

func TestServer_ResumeJob(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	config := squareJob()
	config.CheckpointInterval = 5
	job := createJob(t, s, config)
	waitForState(t, s, job.ID, StateCompleted)

	w := postJSON(t, s.Handler(), "/api/v1/jobs/"+job.ID+"/resume", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	resumed := waitForState(t, s, job.ID, StateCompleted)
	if resumed.ResumedFrom != 20 {
		t.Errorf("Expected resume from iteration 20, got %d", resumed.ResumedFrom)
	}
	if resumed.BestLength != 4 {
		t.Errorf("Resumed job should keep best length 4, got %f", resumed.BestLength)
	}

	if w := postJSON(t, s.Handler(), "/api/v1/jobs/missing/resume", nil); w.Code != http.StatusNotFound {
		t.Errorf("Missing checkpoint: expected 404, got %d", w.Code)
	}
}

func TestServer_ResumeSurvivesOldWorkerCleanup(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	// A cancelled run whose worker has not released its handle yet
	old := s.jobManager.CreateJobWithID("j", squareJob())
	_, oldCancel := context.WithCancel(context.Background())
	oldWorker := s.jobManager.SetCancel(old.ID, oldCancel)
	s.jobManager.UpdateJob(old.ID, func(j *Job) { j.State = StateCancelled })

	config := squareJob()
	config.Iterations = 50_000_000
	snap := &aco.Snapshot{
		Iteration:  1,
		BestTour:   []int{0, 1, 2, 3},
		BestLength: 4,
		Pheromone:  aco.NewPheromoneMatrix(4, 0.1).Rows(),
	}
	if _, err := s.ResumeJob(store.NewCheckpoint(old.ID, snap, config)); err != nil {
		t.Fatalf("ResumeJob failed: %v", err)
	}

	s.jobManager.releaseCancel(old.ID, oldWorker)

	waitForState(t, s, old.ID, StateRunning)
	time.Sleep(20 * time.Millisecond)
	if job, _ := s.jobManager.GetJob(old.ID); job.State != StateRunning {
		t.Fatalf("Resumed job should keep running, got %s", job.State)
	}

	w := postJSON(t, s.Handler(), "/api/v1/jobs/"+old.ID+"/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Resumed job should be cancellable, got %d: %s", w.Code, w.Body.String())
	}
	waitForState(t, s, old.ID, StateCancelled)
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	s := NewServer(config.DefaultConfig().Server, aco.DefaultConfig(), nil)

	config := squareJob()
	config.Iterations = 50_000_000
	job := s.SubmitJob(config)
	waitForState(t, s, job.ID, StateRunning)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	waitForState(t, s, job.ID, StateCancelled)
}

func TestServer_DeleteJob(t *testing.T) {
	st := newTestStore(t)
	s := newTestServer(t, st)

	config := squareJob()
	config.CheckpointInterval = 5
	job := createJob(t, s, config)
	waitForState(t, s, job.ID, StateCompleted)

	del := func(path string) int {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w.Code
	}

	if code := del("/api/v1/jobs/" + job.ID); code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", code)
	}
	if w := get(s.Handler(), "/api/v1/jobs/"+job.ID); w.Code != http.StatusNotFound {
		t.Errorf("Deleted job: expected 404, got %d", w.Code)
	}
	if _, err := os.Stat(st.JobDir(job.ID)); !os.IsNotExist(err) {
		t.Errorf("Job directory should be removed, stat error: %v", err)
	}
	if metrics.BestLength.DeleteLabelValues(job.ID) {
		t.Error("Best length series should already be dropped")
	}
	if code := del("/api/v1/jobs/" + job.ID); code != http.StatusNotFound {
		t.Errorf("Deleting twice: expected 404, got %d", code)
	}

	running := s.jobManager.CreateJob(squareJob())
	if code := del("/api/v1/jobs/" + running.ID); code != http.StatusConflict {
		t.Errorf("Deleting an active job: expected 409, got %d", code)
	}
}

func TestServer_GetTour_CitiesFileShrunk(t *testing.T) {
	s := newTestServer(t, nil)

	path := filepath.Join(t.TempDir(), "cities.txt")
	if err := os.WriteFile(path, []byte("0,0\n1,0\n1,1\n0,1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	config := squareJob()
	config.Cities = nil
	config.CitiesPath = path

	job := s.SubmitJob(config)
	waitForState(t, s, job.ID, StateCompleted)

	if err := os.WriteFile(path, []byte("0,0\n1,0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/tour"); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestServer_JobStream_Completed(t *testing.T) {
	s := newTestServer(t, nil)
	job := createJob(t, s, squareJob())
	waitForState(t, s, job.ID, StateCompleted)

	w := get(s.Handler(), "/api/v1/jobs/"+job.ID+"/stream")

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "data: {") {
		t.Fatalf("Expected SSE data, got %q", body)
	}

	var event ProgressEvent
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data: "))
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if event.State != StateCompleted || event.BestLength != 4 {
		t.Errorf("Unexpected event: %+v", event)
	}
}

func TestServer_JobStream_Live(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping SSE test in short mode")
	}

	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	config := squareJob()
	config.Cities = randomPairs(40, 5)
	config.Iterations = 1_000_000
	job := createJob(t, s, config)

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/jobs/%s/stream", ts.URL, job.ID))
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	// Cancel once the first event arrives; the stream must end with the terminal event
	events := 0
	var last ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last); err != nil {
			t.Fatalf("Bad event %q: %v", line, err)
		}
		events++
		if events == 1 {
			s.jobManager.CancelJob(job.ID)
		}
	}

	if events < 2 {
		t.Errorf("Expected at least 2 events, got %d", events)
	}
	if last.State != StateCancelled {
		t.Errorf("Stream should end with the cancelled event, got %s", last.State)
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w := get(s.Handler(), "/api/v1/jobs/nonexistent/stream")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	health := get(s.Handler(), "/healthz")
	if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), `"ok"`) {
		t.Errorf("Unexpected health response: %d %s", health.Code, health.Body.String())
	}

	w := get(s.Handler(), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !bytes.Contains(body, []byte("antcolonytsp_http_requests_total")) {
		t.Error("Metrics should include the request counter")
	}
}

func TestServer_Routing(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.jobManager.CreateJob(squareJob())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodDelete, "/api/v1/jobs", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/v1/jobs/" + job.ID + "/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/jobs/", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/jobs/" + job.ID + "/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/v1/jobs", http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, w.Code)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/v1/jobs":                "/api/v1/jobs",
		"/api/v1/jobs/abc":            "/api/v1/jobs/{id}",
		"/api/v1/jobs/abc/":           "/api/v1/jobs/{id}",
		"/api/v1/jobs/abc/stream":     "/api/v1/jobs/{id}/stream",
		"/api/v1/jobs/abc/tour/extra": "/api/v1/jobs/{id}/tour",
		"/api/v1/jobs/abc/whatever":   "other",
		"/api/v1/jobs/":               "other",
		"/metrics":                    "/metrics",
		"/healthz":                    "/healthz",
		"/wp-login.php":               "other",
		"/":                           "other",
	}
	for path, want := range tests {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestServer_RequestMetricsHaveBoundedRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	before := testutil.CollectAndCount(metrics.HTTPRequestsTotal)
	for i := 0; i < 100; i++ {
		get(s.Handler(), fmt.Sprintf("/scan/%d", i))
		get(s.Handler(), fmt.Sprintf("/api/v1/jobs/job-%d/x%d", i, i))
	}
	after := testutil.CollectAndCount(metrics.HTTPRequestsTotal)

	// At most the shared "other" route with status 404
	if after-before > 1 {
		t.Errorf("Unknown paths created %d new series", after-before)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	eb.Broadcast(ProgressEvent{
		JobID:      "job1",
		State:      StateRunning,
		Iterations: 10,
		BestLength: 100.5,
		Timestamp:  time.Now(),
	})

	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Iterations != 10 {
			t.Errorf("Expected 10 iterations, got %d", received.Iterations)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	eb.CleanupJob("job1")
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()
	eb.Broadcast(ProgressEvent{JobID: "job2", Iterations: 7})

	ch := eb.Subscribe("job2")
	defer eb.Unsubscribe("job2", ch)

	select {
	case received := <-ch:
		if received.Iterations != 7 {
			t.Errorf("Expected replay of iteration 7, got %d", received.Iterations)
		}
	default:
		t.Error("Late subscribers should receive the last event")
	}
}
