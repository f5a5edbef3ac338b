package aco

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// ant builds one tour. It reads the distance and pheromone matrices and
// never writes to them.
type ant struct {
	dist        *DistanceMatrix
	pher        *PheromoneMatrix
	alpha, beta float64
	rng         *rand.Rand

	tour    []int
	visited []bool
	current int

	// scratch buffers reused across transitions
	candidates []int
	scores     []float64
	cumulative []float64
}

func newAnt(start int, dist *DistanceMatrix, pher *PheromoneMatrix, alpha, beta float64, rng *rand.Rand) *ant {
	n := dist.Size()
	a := &ant{
		dist:       dist,
		pher:       pher,
		alpha:      alpha,
		beta:       beta,
		rng:        rng,
		tour:       make([]int, 0, n),
		visited:    make([]bool, n),
		candidates: make([]int, 0, n),
		scores:     make([]float64, 0, n),
		cumulative: make([]float64, n),
	}
	a.moveTo(start)
	return a
}

// done reports whether every city has been visited
func (a *ant) done() bool {
	return len(a.tour) == a.dist.Size()
}

func (a *ant) moveTo(city int) {
	a.current = city
	a.visited[city] = true
	a.tour = append(a.tour, city)
}

// selectNextCity draws the next city with probability proportional to
// tau^alpha * (1/d)^beta and moves there.
func (a *ant) selectNextCity() int {
	a.candidates = a.candidates[:0]
	a.scores = a.scores[:0]
	for c, seen := range a.visited {
		if seen {
			continue
		}
		a.candidates = append(a.candidates, c)
		a.scores = append(a.scores, a.score(c))
	}

	var next int
	if len(a.candidates) == 1 {
		next = a.candidates[0]
	} else {
		next = a.roulette()
	}

	a.moveTo(next)
	return next
}

func (a *ant) score(c int) float64 {
	d := a.dist.At(a.current, c)
	if d < minDistance {
		d = minDistance
	}
	return math.Pow(a.pher.At(a.current, c), a.alpha) * math.Pow(1/d, a.beta)
}

// roulette maps one uniform draw through the cumulative scores.
//
// Degenerate scores never fail the draw:
//   - some scores are +Inf: uniform choice among those candidates
//   - the sum alone overflows: scores are rescaled by their maximum
//   - the sum is zero or NaN: uniform choice among all candidates
func (a *ant) roulette() int {
	if i, ok := a.spin(a.scores); ok {
		return a.candidates[i]
	}

	var infinite []int
	for i, s := range a.scores {
		if math.IsInf(s, 1) {
			infinite = append(infinite, i)
		}
	}
	if len(infinite) > 0 {
		return a.candidates[infinite[a.rng.Intn(len(infinite))]]
	}

	if total := floats.Sum(a.scores); math.IsInf(total, 1) {
		floats.Scale(1/floats.Max(a.scores), a.scores)
		if i, ok := a.spin(a.scores); ok {
			return a.candidates[i]
		}
	}

	return a.candidates[a.rng.Intn(len(a.candidates))]
}

// spin performs the cumulative-sum draw. It reports false without consuming
// randomness when the total is not a positive finite number.
func (a *ant) spin(scores []float64) (int, bool) {
	cum := floats.CumSum(a.cumulative[:len(scores)], scores)
	total := cum[len(cum)-1]
	if !(total > 0) || math.IsInf(total, 1) {
		return 0, false
	}

	r := a.rng.Float64() * total
	for i, c := range cum {
		if r < c {
			return i, true
		}
	}

	// r rounded up to total: take the last candidate with a positive score
	for i := len(scores) - 1; i >= 0; i-- {
		if scores[i] > 0 {
			return i, true
		}
	}
	return len(scores) - 1, true
}
