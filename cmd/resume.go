package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/geo"
	"github.com/cwbudde/antcolonytsp/internal/server"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir string
	resumeIters   int
	resumeAnts    int
	resumeAlpha   float64
	resumeBeta    float64
	resumeRho     float64
	resumeWorkers int
	resumeTour    string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Continue a job from its checkpoint",
	Long: `Loads the checkpoint of a job, restores the best tour and the pheromone
matrix, and continues the run. Colony parameters may be changed; the cities
and the tour policy must match the checkpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 0, "New total iteration budget (default: the checkpoint's)")
	resumeCmd.Flags().IntVar(&resumeAnts, "ants", 0, "Ants per iteration")
	resumeCmd.Flags().Float64Var(&resumeAlpha, "alpha", 0, "Pheromone exponent")
	resumeCmd.Flags().Float64Var(&resumeBeta, "beta", 0, "Distance exponent")
	resumeCmd.Flags().Float64Var(&resumeRho, "rho", 0, "Evaporation rate in (0,1)")
	resumeCmd.Flags().IntVar(&resumeWorkers, "workers", 0, "Parallel ants per iteration")
	resumeCmd.Flags().StringVar(&resumeTour, "tour", "", "Tour policy (must match the checkpoint)")
	rootCmd.AddCommand(resumeCmd)
}

// resumeConfig applies the changed flags to the checkpointed job config
func resumeConfig(cmd *cobra.Command, base store.JobConfig) store.JobConfig {
	cfg := base
	changed := cmd.Flags().Changed
	if changed("iters") {
		cfg.Iterations = resumeIters
	}
	if changed("ants") {
		cfg.Ants = resumeAnts
	}
	if changed("alpha") {
		cfg.Alpha = resumeAlpha
	}
	if changed("beta") {
		cfg.Beta = resumeBeta
	}
	if changed("rho") {
		cfg.Evaporation = resumeRho
	}
	if changed("workers") {
		cfg.Workers = resumeWorkers
	}
	if changed("tour") {
		cfg.Tour = aco.TourPolicy(resumeTour)
	}
	return cfg
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	jobStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	checkpoint, err := jobStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint is invalid: %w", err)
	}

	config := resumeConfig(cmd, checkpoint.Config)
	if err := checkpoint.IsCompatible(config); err != nil {
		return err
	}
	if err := config.Config.Validate(); err != nil {
		return err
	}
	if config.Iterations <= checkpoint.Iteration {
		return fmt.Errorf("checkpoint already at iteration %d of %d; raise --iters to continue",
			checkpoint.Iteration, config.Iterations)
	}

	var cities []geo.City
	if len(config.Cities) > 0 {
		cities = geo.FromPairs(config.Cities)
	} else if cities, err = geo.LoadCities(config.CitiesPath); err != nil {
		return err
	}

	slog.Info("Resuming job",
		"job_id", jobID,
		"from_iteration", checkpoint.Iteration,
		"to_iteration", config.Iterations,
		"best_length", checkpoint.BestLength,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	job, runErr := server.RunLocal(ctx, jobStore, jobID, config, checkpoint.Snapshot())
	if job == nil {
		return runErr
	}

	out := jobOutput(job, cities)
	out.Elapsed = time.Since(start).Seconds()
	printSolution(out)

	if job.BestLength < checkpoint.BestLength {
		fmt.Printf("Improved by %.6f over the checkpoint\n", checkpoint.BestLength-job.BestLength)
	}
	return runErr
}
