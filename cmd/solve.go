package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/geo"
	"github.com/cwbudde/antcolonytsp/internal/server"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	solveFlags      solverFlags
	outPath         string
	saveCitiesPath  string
	solveDataDir    string
	checkpointEvery int
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a tour locally",
	Long: `Runs the ant colony on a set of cities and prints the best tour.
With --data-dir the run is recorded as a job (trace, checkpoints and result)
that can later be continued with the resume command.`,
	RunE: runSolve,
}

func init() {
	addSolverFlags(solveCmd, &solveFlags)
	solveCmd.Flags().StringVar(&outPath, "out", "", "Write the result as JSON to this file")
	solveCmd.Flags().StringVar(&saveCitiesPath, "save-cities", "", "Write the cities to this file, e.g. to reuse --random cities")
	solveCmd.Flags().StringVar(&solveDataDir, "data-dir", "", "Record the run as a resumable job in this directory")
	solveCmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 10, "Checkpoint interval in iterations when --data-dir is set")
	rootCmd.AddCommand(solveCmd)
}

// solveOutput is the JSON document written by --out
type solveOutput struct {
	JobID         string     `json:"jobId,omitempty"`
	Config        aco.Config `json:"config"`
	Cities        []geo.City `json:"cities"`
	Tour          []int      `json:"tour"`
	Length        float64    `json:"length"`
	Iterations    int        `json:"iterations"`
	BestIteration int        `json:"bestIteration,omitempty"`
	Converged     bool       `json:"converged"`
	History       []float64  `json:"history,omitempty"`
	Elapsed       float64    `json:"elapsedSeconds"`
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg := solveFlags.solverConfig(cmd, appConfig.Solver)
	if err := cfg.Validate(); err != nil {
		return err
	}

	cities, err := solveFlags.cities(cfg.Seed)
	if err != nil {
		return err
	}
	if saveCitiesPath != "" {
		if err := saveCities(saveCitiesPath, cities); err != nil {
			return err
		}
		slog.Info("Cities written", "path", saveCitiesPath, "cities", len(cities))
	}

	slog.Info("Starting solve",
		"cities", len(cities),
		"ants", cfg.Ants,
		"iterations", cfg.Iterations,
		"tour", cfg.Tour,
		"reinforcement", cfg.Reinforcement,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	var out *solveOutput
	if solveDataDir != "" {
		out, err = solveAsJob(ctx, cfg, cities)
	} else {
		out, err = solveDirect(ctx, cfg, cities)
	}
	if out == nil {
		return err
	}
	out.Elapsed = time.Since(start).Seconds()

	if err != nil {
		slog.Warn("Solve interrupted, reporting best tour so far", "error", err)
	}

	printSolution(out)

	if outPath != "" {
		if werr := writeSolveOutput(outPath, out); werr != nil {
			return werr
		}
		slog.Info("Result written", "path", outPath)
	}
	return err
}

func solveDirect(ctx context.Context, cfg aco.Config, cities []geo.City) (*solveOutput, error) {
	solver, err := aco.NewSolver(cities, cfg, aco.WithObserver(func(stats aco.IterationStats) {
		if stats.Improved {
			slog.Debug("Improved tour", "iteration", stats.Iteration, "best_length", stats.BestLength)
		}
	}))
	if err != nil {
		return nil, err
	}

	result, err := solver.Run(ctx)
	if result.Iterations == 0 {
		return nil, err
	}
	return &solveOutput{
		Config:        cfg,
		Cities:        cities,
		Tour:          result.Tour,
		Length:        result.Length,
		Iterations:    result.Iterations,
		BestIteration: result.BestIteration,
		Converged:     result.Converged,
		History:       result.History,
	}, err
}

func solveAsJob(ctx context.Context, cfg aco.Config, cities []geo.City) (*solveOutput, error) {
	jobStore, err := store.NewFSStore(solveDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	jobID := uuid.New().String()
	jobConfig := store.JobConfig{
		Config:             cfg,
		Cities:             geo.ToPairs(cities),
		CheckpointInterval: checkpointEvery,
	}

	slog.Info("Recording job", "job_id", jobID, "dir", jobStore.JobDir(jobID))
	job, err := server.RunLocal(ctx, jobStore, jobID, jobConfig, nil)
	if job == nil || job.Iterations == 0 {
		return nil, err
	}
	return jobOutput(job, cities), err
}

func jobOutput(job *server.Job, cities []geo.City) *solveOutput {
	return &solveOutput{
		JobID:      job.ID,
		Config:     job.Config.Config,
		Cities:     cities,
		Tour:       job.BestTour,
		Length:     job.BestLength,
		Iterations: job.Iterations,
		Converged:  job.Converged,
	}
}

func printSolution(out *solveOutput) {
	if out.JobID != "" {
		fmt.Printf("Job: %s\n", out.JobID)
	}
	fmt.Printf("Cities: %d\n", len(out.Cities))
	fmt.Printf("Iterations: %d", out.Iterations)
	if out.Converged {
		fmt.Print(" (converged)")
	}
	fmt.Println()
	if out.BestIteration > 0 {
		fmt.Printf("Best found at iteration: %d\n", out.BestIteration)
	}
	fmt.Printf("Length: %.6f\n", out.Length)
	fmt.Printf("Tour: %s\n", formatTour(out.Tour, out.Config.Closed()))
	fmt.Printf("Elapsed: %s\n", time.Duration(out.Elapsed*float64(time.Second)).Round(time.Millisecond))
}

// formatTour renders "0 -> 3 -> 1", repeating the start for closed tours
func formatTour(tour []int, closed bool) string {
	if len(tour) == 0 {
		return "(none)"
	}
	parts := make([]string, 0, len(tour)+1)
	for _, c := range tour {
		parts = append(parts, fmt.Sprint(c))
	}
	if closed {
		parts = append(parts, fmt.Sprint(tour[0]))
	}
	return strings.Join(parts, " -> ")
}

func saveCities(path string, cities []geo.City) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cities file: %w", err)
	}
	if err := geo.WriteCities(f, cities); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSolveOutput(path string, out *solveOutput) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
