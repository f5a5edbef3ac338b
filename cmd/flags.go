package main

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/geo"
	"github.com/spf13/cobra"
)

// solverFlags holds the colony flags shared by solve and tune
type solverFlags struct {
	citiesPath string
	random     int
	ants       int
	iters      int
	alpha      float64
	beta       float64
	rho        float64
	tau0       float64
	seed       int64
	tour       string
	reinforce  string
	workers    int
	twoOpt     bool
	patience   int
	threshold  float64
}

func addSolverFlags(cmd *cobra.Command, f *solverFlags) {
	d := aco.DefaultConfig()
	cmd.Flags().StringVar(&f.citiesPath, "cities", "", "Cities file with one \"x,y\" pair per line")
	cmd.Flags().IntVar(&f.random, "random", 0, "Use N random cities in a 100x100 square instead of --cities")
	cmd.Flags().IntVar(&f.ants, "ants", d.Ants, "Ants per iteration")
	cmd.Flags().IntVar(&f.iters, "iters", d.Iterations, "Iterations")
	cmd.Flags().Float64Var(&f.alpha, "alpha", d.Alpha, "Pheromone exponent")
	cmd.Flags().Float64Var(&f.beta, "beta", d.Beta, "Distance exponent")
	cmd.Flags().Float64Var(&f.rho, "rho", d.Evaporation, "Evaporation rate in (0,1)")
	cmd.Flags().Float64Var(&f.tau0, "tau0", d.InitialPheromone, "Initial pheromone")
	cmd.Flags().Int64Var(&f.seed, "seed", d.Seed, "Random seed")
	cmd.Flags().StringVar(&f.tour, "tour", string(d.Tour), "Tour policy: closed or open")
	cmd.Flags().StringVar(&f.reinforce, "reinforce", string(d.Reinforcement), "Reinforcement: global-best or iteration-best")
	cmd.Flags().IntVar(&f.workers, "workers", d.Workers, "Parallel ants per iteration")
	cmd.Flags().BoolVar(&f.twoOpt, "two-opt", false, "Improve every tour with 2-opt")
	cmd.Flags().IntVar(&f.patience, "patience", 0, "Stop after N iterations without improvement (0 = run all iterations)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", d.Threshold, "Relative improvement that resets --patience")
}

// solverConfig starts from the configuration file and applies the flags
// the user set explicitly.
func (f *solverFlags) solverConfig(cmd *cobra.Command, base aco.Config) aco.Config {
	cfg := base
	changed := cmd.Flags().Changed

	if changed("ants") {
		cfg.Ants = f.ants
	}
	if changed("iters") {
		cfg.Iterations = f.iters
	}
	if changed("alpha") {
		cfg.Alpha = f.alpha
	}
	if changed("beta") {
		cfg.Beta = f.beta
	}
	if changed("rho") {
		cfg.Evaporation = f.rho
	}
	if changed("tau0") {
		cfg.InitialPheromone = f.tau0
	}
	if changed("seed") {
		cfg.Seed = f.seed
	}
	if changed("tour") {
		cfg.Tour = aco.TourPolicy(f.tour)
	}
	if changed("reinforce") {
		cfg.Reinforcement = aco.Reinforcement(f.reinforce)
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("two-opt") {
		cfg.TwoOpt = f.twoOpt
	}
	if changed("patience") {
		cfg.Patience = f.patience
	}
	if changed("threshold") {
		cfg.Threshold = f.threshold
	}
	return cfg
}

// cities loads --cities or generates --random cities from the seed
func (f *solverFlags) cities(seed int64) ([]geo.City, error) {
	switch {
	case f.citiesPath != "" && f.random > 0:
		return nil, fmt.Errorf("--cities and --random are mutually exclusive")
	case f.citiesPath != "":
		return geo.LoadCities(f.citiesPath)
	case f.random > 0:
		return geo.RandomCities(f.random, 100, 100, rand.New(rand.NewSource(seed))), nil
	default:
		return nil, fmt.Errorf("one of --cities or --random is required")
	}
}
