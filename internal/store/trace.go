package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
)

const traceFile = "trace.jsonl"

// TraceEntry is one line of trace.jsonl: the state after one iteration.
type TraceEntry struct {
	Iteration     int       `json:"iteration"`
	BestLength    float64   `json:"bestLength"`
	IterationBest float64   `json:"iterationBest"`
	MeanLength    float64   `json:"meanLength"`
	StdDev        float64   `json:"stdDev"`
	Timestamp     time.Time `json:"timestamp"`

	// Tour is the best tour, recorded only on improving iterations
	Tour []int `json:"tour,omitempty"`
}

// NewTraceEntry converts solver iteration statistics to a trace entry
func NewTraceEntry(stats aco.IterationStats, tour []int) TraceEntry {
	return TraceEntry{
		Iteration:     stats.Iteration,
		BestLength:    stats.BestLength,
		IterationBest: stats.IterationBest,
		MeanLength:    stats.MeanLength,
		StdDev:        stats.StdDev,
		Timestamp:     time.Now(),
		Tour:          tour,
	}
}

// TracePath returns the trace file location inside a job directory
func TracePath(jobDir string) string {
	return filepath.Join(jobDir, traceFile)
}

// TraceWriter appends trace entries to a JSONL file through a buffer.
// It is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	path   string
}

// NewTraceWriter creates a trace writer at <jobDir>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(jobDir string, append bool) (*TraceWriter, error) {
	path := TracePath(jobDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	writer := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{
		file:   file,
		writer: writer,
		enc:    json.NewEncoder(writer),
		path:   path,
	}, nil
}

// Write buffers one entry. Encoder output already ends with a newline.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// ReadTrace reads every entry of the trace in jobDir.
// Returns *NotFoundError when there is no trace.
func ReadTrace(jobDir string) ([]TraceEntry, error) {
	file, err := os.Open(TracePath(jobDir))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: filepath.Base(jobDir)}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	dec := json.NewDecoder(bufio.NewReader(file))
	for {
		var entry TraceEntry
		err := dec.Decode(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
