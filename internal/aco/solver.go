// Package aco solves the traveling salesman problem with an ant colony:
// ants build tours guided by a shared pheromone matrix that is reinforced
// along good tours and evaporates over time.
package aco

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/antcolonytsp/internal/geo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Solution is a tour and its length
type Solution struct {
	Tour   []int   `json:"tour"`
	Length float64 `json:"length"`
}

// Result holds the output of a solver run
type Result struct {
	Tour          []int     `json:"tour"`
	Length        float64   `json:"length"`
	Iterations    int       `json:"iterations"`    // Iterations completed, including resumed ones
	BestIteration int       `json:"bestIteration"` // Iteration that produced the best tour (1-based)
	Converged     bool      `json:"converged"`
	History       []float64 `json:"history"` // Best length after each iteration of this run
}

// IterationStats summarizes one iteration for observers
type IterationStats struct {
	Iteration     int     `json:"iteration"` // 1-based, counts resumed iterations
	BestLength    float64 `json:"bestLength"`
	IterationBest float64 `json:"iterationBest"`
	MeanLength    float64 `json:"meanLength"`
	StdDev        float64 `json:"stdDev"`
	Improved      bool    `json:"improved"`
}

// Snapshot is the resumable state of a solver
type Snapshot struct {
	Iteration     int         `json:"iteration"`
	BestIteration int         `json:"bestIteration,omitempty"` // 0 when unknown
	BestTour      []int       `json:"bestTour"`
	BestLength    float64     `json:"bestLength"`
	Pheromone     [][]float64 `json:"pheromone"`
}

// Option configures a Solver
type Option func(*Solver)

// WithRand injects the random source used for every start city and
// transition draw. It overrides Config.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(s *Solver) {
		s.rng = rng
	}
}

// WithObserver registers a callback invoked after every iteration on the
// goroutine that called Run.
func WithObserver(fn func(IterationStats)) Option {
	return func(s *Solver) {
		s.observer = fn
	}
}

// WithSnapshot continues from previously saved state
func WithSnapshot(snap *Snapshot) Option {
	return func(s *Solver) {
		s.snapshot = snap
	}
}

// Solver runs the ant colony. A Solver is a single run: create a new one
// for every solve.
type Solver struct {
	cfg      Config
	dist     *DistanceMatrix
	pher     *PheromoneMatrix
	rng      *rand.Rand
	observer func(IterationStats)
	snapshot *Snapshot
	tracker  *ConvergenceTracker

	best          Solution
	bestDeposit   *TrailDeposit // deposit of best, rebuilt only when best changes
	bestIteration int
	iteration     int // completed iterations
	history       []float64
}

// NewSolver validates the configuration and the cities and prepares a run.
// Invalid parameters yield a *ConfigurationError, invalid cities an *InputError.
func NewSolver(cities []geo.City, cfg Config, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	dist, err := NewDistanceMatrix(cities)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		cfg:  cfg,
		dist: dist,
		pher: NewPheromoneMatrix(dist.Size(), cfg.InitialPheromone),
		best: Solution{Length: math.Inf(1)},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(cfg.Seed))
	}

	if s.snapshot != nil {
		if err := s.restore(s.snapshot); err != nil {
			return nil, err
		}
	}

	if cfg.Patience > 0 {
		s.tracker = NewConvergenceTracker(cfg.Patience, cfg.Threshold)
	}

	return s, nil
}

func (s *Solver) restore(snap *Snapshot) error {
	n := s.dist.Size()
	if snap.Iteration < 0 {
		return &ConfigurationError{Field: "Snapshot.Iteration", Reason: "cannot be negative"}
	}
	if snap.BestIteration < 0 || snap.BestIteration > snap.Iteration {
		return &ConfigurationError{
			Field:  "Snapshot.BestIteration",
			Reason: fmt.Sprintf("%d is outside [0, %d]", snap.BestIteration, snap.Iteration),
		}
	}
	if err := ValidateTour(snap.BestTour, n); err != nil {
		return &ConfigurationError{Field: "Snapshot.BestTour", Reason: err.Error()}
	}

	pher, err := PheromoneFromRows(snap.Pheromone)
	if err != nil {
		return &ConfigurationError{Field: "Snapshot.Pheromone", Reason: err.Error()}
	}
	if pher.Size() != n {
		return &ConfigurationError{
			Field:  "Snapshot.Pheromone",
			Reason: fmt.Sprintf("size %d does not match %d cities", pher.Size(), n),
		}
	}

	s.pher = pher
	s.iteration = snap.Iteration
	s.bestIteration = snap.BestIteration
	if s.bestIteration == 0 {
		s.bestIteration = snap.Iteration
	}
	s.best = Solution{
		Tour:   append([]int(nil), snap.BestTour...),
		Length: s.dist.TourLength(snap.BestTour, s.cfg.Closed()),
	}
	return nil
}

// Run iterates until the iteration budget is spent or convergence is
// detected. On context cancellation it returns the best result so far
// together with the context error.
func (s *Solver) Run(ctx context.Context) (*Result, error) {
	slog.Debug("Starting colony",
		"cities", s.dist.Size(),
		"ants", s.cfg.Ants,
		"iterations", s.cfg.Iterations,
		"resume_from", s.iteration,
	)

	converged := false
	for s.iteration < s.cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return s.result(false), err
		}

		stats, err := s.Step(ctx)
		if err != nil {
			return s.result(false), err
		}

		if s.tracker != nil && s.tracker.Update(stats.BestLength) {
			converged = true
			break
		}
	}

	slog.Debug("Colony finished",
		"iterations", s.iteration,
		"best_length", s.best.Length,
		"best_iteration", s.bestIteration,
		"converged", converged,
	)

	return s.result(converged), nil
}

// Step runs a single iteration: construct every tour, track the best, and
// apply one pheromone update.
func (s *Solver) Step(ctx context.Context) (IterationStats, error) {
	tours, lengths, err := s.construct(ctx)
	if err != nil {
		return IterationStats{}, err
	}

	closed := s.cfg.Closed()
	improved := false
	iterBest := 0
	for k, length := range lengths {
		if length < lengths[iterBest] {
			iterBest = k
		}
		if length < s.best.Length {
			s.best = Solution{Tour: append([]int(nil), tours[k]...), Length: length}
			s.bestDeposit = nil
			s.bestIteration = s.iteration + 1
			improved = true
		}
	}

	var deposit *TrailDeposit
	switch s.cfg.Reinforcement {
	case ReinforceIterationBest:
		deposit = NewTrailDeposit(s.dist.Size())
		deposit.AddTour(tours[iterBest], lengths[iterBest], closed)
	default:
		if s.bestDeposit == nil {
			s.bestDeposit = NewTrailDeposit(s.dist.Size())
			s.bestDeposit.AddTour(s.best.Tour, s.best.Length, closed)
		}
		deposit = s.bestDeposit
	}
	s.pher.Update(deposit, s.cfg.Evaporation)

	s.iteration++
	s.history = append(s.history, s.best.Length)

	stats := IterationStats{
		Iteration:     s.iteration,
		BestLength:    s.best.Length,
		IterationBest: lengths[iterBest],
		Improved:      improved,
	}
	if len(lengths) > 1 {
		stats.MeanLength, stats.StdDev = stat.MeanStdDev(lengths, nil)
	} else {
		stats.MeanLength = lengths[0]
	}

	if s.observer != nil {
		s.observer(stats)
	}
	return stats, nil
}

// construct builds one tour per ant. Pheromone is not modified until every
// tour is complete, so parallel ants observe the same matrix.
func (s *Solver) construct(ctx context.Context) ([][]int, []float64, error) {
	tours := make([][]int, s.cfg.Ants)
	lengths := make([]float64, s.cfg.Ants)

	if s.cfg.Workers <= 1 {
		for k := range tours {
			tours[k], lengths[k] = s.walk(s.rng)
		}
		return tours, lengths, nil
	}

	seeds := agentSeeds(s.rng, s.cfg.Ants)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for k := range tours {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tours[k], lengths[k] = s.walk(rand.New(rand.NewSource(seeds[k])))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tours, lengths, nil
}

// walk drives one ant from a uniformly random start city to a full tour
func (s *Solver) walk(rng *rand.Rand) ([]int, float64) {
	n := s.dist.Size()
	a := newAnt(rng.Intn(n), s.dist, s.pher, s.cfg.Alpha, s.cfg.Beta, rng)
	for !a.done() {
		a.selectNextCity()
	}

	closed := s.cfg.Closed()
	if s.cfg.TwoOpt {
		twoOpt(a.tour, s.dist, closed)
	}
	return a.tour, s.dist.TourLength(a.tour, closed)
}

func (s *Solver) result(converged bool) *Result {
	return &Result{
		Tour:          append([]int(nil), s.best.Tour...),
		Length:        s.best.Length,
		Iterations:    s.iteration,
		BestIteration: s.bestIteration,
		Converged:     converged,
		History:       append([]float64(nil), s.history...),
	}
}

// Best returns the best solution found so far. Length is +Inf before the
// first iteration.
func (s *Solver) Best() Solution {
	return Solution{Tour: append([]int(nil), s.best.Tour...), Length: s.best.Length}
}

// Snapshot captures the state needed to resume this run. It must not be
// called concurrently with Run; use it from an observer callback.
func (s *Solver) Snapshot() *Snapshot {
	return &Snapshot{
		Iteration:     s.iteration,
		BestIteration: s.bestIteration,
		BestTour:      append([]int(nil), s.best.Tour...),
		BestLength:    s.best.Length,
		Pheromone:     s.pher.Rows(),
	}
}

// Pheromone exposes the live pheromone matrix for inspection
func (s *Solver) Pheromone() *PheromoneMatrix {
	return s.pher
}

// Distances exposes the distance matrix
func (s *Solver) Distances() *DistanceMatrix {
	return s.dist
}

// ValidateTour checks that tour is a permutation of 0..n-1
func ValidateTour(tour []int, n int) error {
	if len(tour) != n {
		return fmt.Errorf("tour has %d cities, expected %d", len(tour), n)
	}
	seen := make([]bool, n)
	for _, c := range tour {
		if c < 0 || c >= n {
			return fmt.Errorf("city %d out of range", c)
		}
		if seen[c] {
			return fmt.Errorf("city %d visited twice", c)
		}
		seen[c] = true
	}
	return nil
}
