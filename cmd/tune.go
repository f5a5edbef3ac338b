package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cwbudde/antcolonytsp/internal/opt"
	"github.com/spf13/cobra"
)

var (
	tuneFlags     solverFlags
	tuneTrials    int
	tunePop       int
	tuneOptimizer string
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search alpha, beta and evaporation for a city set",
	Long: `Runs an outer optimizer over the colony parameters alpha, beta and
evaporation. Every candidate is scored by the best tour length of a seeded
colony run, so the search is reproducible.`,
	RunE: runTune,
}

func init() {
	addSolverFlags(tuneCmd, &tuneFlags)
	tuneCmd.Flags().IntVar(&tuneTrials, "trials", 20, "Optimizer iterations (mayfly) or evaluations (random)")
	tuneCmd.Flags().IntVar(&tunePop, "pop", 20, "Mayfly population size")
	tuneCmd.Flags().StringVar(&tuneOptimizer, "optimizer", "mayfly", "Outer optimizer: mayfly or random")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	base := tuneFlags.solverConfig(cmd, appConfig.Solver)
	if err := base.Validate(); err != nil {
		return err
	}

	cities, err := tuneFlags.cities(base.Seed)
	if err != nil {
		return err
	}

	var optimizer opt.Optimizer
	switch tuneOptimizer {
	case "mayfly":
		optimizer = opt.NewMayfly(tuneTrials, tunePop, base.Seed)
	case "random":
		optimizer = opt.NewRandomSearch(tuneTrials, base.Seed)
	default:
		return fmt.Errorf("unknown optimizer: %s", tuneOptimizer)
	}

	slog.Info("Starting tuning",
		"cities", len(cities),
		"optimizer", tuneOptimizer,
		"trials", tuneTrials,
		"iterations_per_run", base.Iterations,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	result, err := opt.Tune(ctx, cities, base, opt.DefaultParameterSpace(), optimizer)
	if err != nil {
		return err
	}

	fmt.Printf("Evaluations: %d\n", result.Evaluations)
	fmt.Printf("Alpha: %.4f\n", result.Config.Alpha)
	fmt.Printf("Beta: %.4f\n", result.Config.Beta)
	fmt.Printf("Evaporation: %.4f\n", result.Config.Evaporation)
	fmt.Printf("Length: %.6f\n", result.Length)
	fmt.Printf("Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("\nReuse with: --alpha %.4f --beta %.4f --rho %.4f\n",
		result.Config.Alpha, result.Config.Beta, result.Config.Evaporation)
	return nil
}
