package aco

import (
	"fmt"
	"math"

	"github.com/cwbudde/antcolonytsp/internal/geo"
	"gonum.org/v1/gonum/mat"
)

// minDistance replaces zero distances (coincident cities) wherever a
// distance is inverted or a length divides a deposit.
const minDistance = 1e-12

// DistanceMatrix holds the Euclidean distance between every pair of cities.
// It is immutable after construction and safe for concurrent reads.
type DistanceMatrix struct {
	n int
	d *mat.SymDense
}

// NewDistanceMatrix computes all pairwise distances.
// It returns an *InputError for fewer than two cities or a non-finite coordinate.
func NewDistanceMatrix(cities []geo.City) (*DistanceMatrix, error) {
	if len(cities) < 2 {
		return nil, &InputError{Index: -1, Reason: fmt.Sprintf("need at least 2 cities, got %d", len(cities))}
	}
	for i, c := range cities {
		if !c.Finite() {
			return nil, &InputError{Index: i, Reason: "has a non-finite coordinate"}
		}
	}

	n := len(cities)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist := cities[i].DistanceTo(cities[j])
			if math.IsInf(dist, 0) {
				return nil, &InputError{Index: j, Reason: fmt.Sprintf("is too far from city %d", i)}
			}
			d.SetSym(i, j, dist)
		}
	}

	return &DistanceMatrix{n: n, d: d}, nil
}

// Size returns the number of cities
func (m *DistanceMatrix) Size() int {
	return m.n
}

// At returns the distance between cities i and j
func (m *DistanceMatrix) At(i, j int) float64 {
	return m.d.At(i, j)
}

// TourLength sums the distances between consecutive cities of tour, plus the
// return edge when closed is set.
func (m *DistanceMatrix) TourLength(tour []int, closed bool) float64 {
	var length float64
	for k := 0; k+1 < len(tour); k++ {
		length += m.d.At(tour[k], tour[k+1])
	}
	if closed && len(tour) > 1 {
		length += m.d.At(tour[len(tour)-1], tour[0])
	}
	return length
}
