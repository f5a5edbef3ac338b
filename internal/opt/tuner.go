package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/antcolonytsp/internal/aco"
	"github.com/cwbudde/antcolonytsp/internal/geo"
)

// tuneDim is the number of tuned parameters: alpha, beta, evaporation
const tuneDim = 3

// ParameterSpace bounds the colony parameters searched by Tune
type ParameterSpace struct {
	AlphaMin, AlphaMax             float64
	BetaMin, BetaMax               float64
	EvaporationMin, EvaporationMax float64
}

// DefaultParameterSpace returns the search ranges used by the tune command
func DefaultParameterSpace() ParameterSpace {
	return ParameterSpace{
		AlphaMin: 0, AlphaMax: 5,
		BetaMin: 0, BetaMax: 10,
		EvaporationMin: 0.01, EvaporationMax: 0.99,
	}
}

// Decode maps a point of the unit cube to a colony configuration.
// Coordinates outside [0,1] are clamped.
func (p ParameterSpace) Decode(base aco.Config, x []float64) aco.Config {
	cfg := base
	cfg.Alpha = lerp(p.AlphaMin, p.AlphaMax, x[0])
	cfg.Beta = lerp(p.BetaMin, p.BetaMax, x[1])
	cfg.Evaporation = lerp(p.EvaporationMin, p.EvaporationMax, x[2])
	return cfg
}

func lerp(lo, hi, t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return lo + t*(hi-lo)
}

// TuneResult holds the best parameters found
type TuneResult struct {
	Config      aco.Config `json:"config"`
	Length      float64    `json:"length"`
	Evaluations int        `json:"evaluations"`
}

// Tune searches alpha, beta and evaporation for the configuration whose
// seeded colony run yields the shortest tour on cities. Every evaluation
// uses base.Seed, so a configuration always scores the same.
func Tune(ctx context.Context, cities []geo.City, base aco.Config, space ParameterSpace, optimizer Optimizer) (*TuneResult, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if _, err := aco.NewDistanceMatrix(cities); err != nil {
		return nil, err
	}

	evaluations := 0
	eval := func(x []float64) float64 {
		if ctx.Err() != nil {
			return math.MaxFloat64
		}
		evaluations++

		cfg := space.Decode(base, x)
		solver, err := aco.NewSolver(cities, cfg)
		if err != nil {
			slog.Debug("Skipping invalid candidate", "error", err)
			return math.MaxFloat64
		}
		res, err := solver.Run(ctx)
		if err != nil {
			return math.MaxFloat64
		}
		return res.Length
	}

	lower := make([]float64, tuneDim)
	upper := make([]float64, tuneDim)
	for i := range upper {
		upper[i] = 1
	}

	best, _ := optimizer.Run(eval, lower, upper, tuneDim)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := space.Decode(base, best)
	solver, err := aco.NewSolver(cities, cfg)
	if err != nil {
		return nil, fmt.Errorf("best candidate is invalid: %w", err)
	}
	res, err := solver.Run(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("Tuning complete",
		"alpha", cfg.Alpha,
		"beta", cfg.Beta,
		"evaporation", cfg.Evaporation,
		"length", res.Length,
		"evaluations", evaluations,
	)

	return &TuneResult{Config: cfg, Length: res.Length, Evaluations: evaluations}, nil
}
