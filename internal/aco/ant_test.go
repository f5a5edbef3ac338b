package aco

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwbudde/antcolonytsp/internal/geo"
)

func buildAnt(t *testing.T, cities []geo.City, alpha, beta float64, seed int64) *ant {
	t.Helper()
	dm, err := NewDistanceMatrix(cities)
	require.NoError(t, err)
	return newAnt(0, dm, NewPheromoneMatrix(dm.Size(), 0.1), alpha, beta, rand.New(rand.NewSource(seed)))
}

func walkAll(a *ant) {
	for !a.done() {
		a.selectNextCity()
	}
}

func TestAnt_TourIsPermutation(t *testing.T) {
	cities := randomCities(25, 3)
	for seed := int64(0); seed < 20; seed++ {
		a := buildAnt(t, cities, 1, 5, seed)
		walkAll(a)
		require.NoError(t, ValidateTour(a.tour, len(cities)))
		require.Equal(t, 0, a.tour[0])
	}
}

func TestAnt_LastCityIsDeterministic(t *testing.T) {
	a := buildAnt(t, []geo.City{{X: 0, Y: 0}, {X: 5, Y: 5}}, 1, 5, 1)
	reference := rand.New(rand.NewSource(1))
	next := a.selectNextCity()

	require.Equal(t, 1, next)
	require.True(t, a.done())
	// no randomness consumed for a forced move
	require.Equal(t, reference.Int63(), a.rng.Int63())
}

func TestAnt_PrefersNearCity(t *testing.T) {
	cities := []geo.City{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 100, Y: 0}}
	near := 0
	for seed := int64(0); seed < 200; seed++ {
		a := buildAnt(t, cities, 1, 5, seed)
		if a.selectNextCity() == 1 {
			near++
		}
	}
	require.Equal(t, 200, near)
}

func TestAnt_UnderflowFallsBackToUniform(t *testing.T) {
	// (1/1000)^1000 underflows to zero for every candidate
	cities := []geo.City{{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 0, Y: 1000}, {X: 1000, Y: 1000}}
	counts := make(map[int]int)
	for seed := int64(0); seed < 300; seed++ {
		a := buildAnt(t, cities, 1, 1000, seed)
		first := a.selectNextCity()
		counts[first]++
		walkAll(a)
		require.NoError(t, ValidateTour(a.tour, 4))
	}
	for c := 1; c <= 3; c++ {
		require.Greater(t, counts[c], 0, "city %d never chosen", c)
	}
}

func TestAnt_InfiniteScoresFallback(t *testing.T) {
	// coincident cities: (1/minDistance)^40 overflows to +Inf
	cities := []geo.City{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 0}, {X: 5, Y: 5}}
	for seed := int64(0); seed < 50; seed++ {
		a := buildAnt(t, cities, 1, 40, seed)
		next := a.selectNextCity()
		require.Contains(t, []int{1, 2}, next)
		walkAll(a)
		require.NoError(t, ValidateTour(a.tour, 4))
	}
}

func TestAnt_SumOverflowIsRescaled(t *testing.T) {
	a := buildAnt(t, unitSquare(), 1, 5, 9)
	a.candidates = []int{1, 2, 3}

	for k := 0; k < 50; k++ {
		a.scores = []float64{math.MaxFloat64, math.MaxFloat64, 0}
		require.Contains(t, []int{1, 2}, a.roulette())
	}
}

func TestTwoOpt_UncrossesSquare(t *testing.T) {
	dm, err := NewDistanceMatrix(unitSquare())
	require.NoError(t, err)

	tour := []int{0, 2, 1, 3}
	require.True(t, twoOpt(tour, dm, true))
	require.NoError(t, ValidateTour(tour, 4))
	require.InDelta(t, 4.0, dm.TourLength(tour, true), 1e-12)
}

func TestTwoOpt_OpenKeepsEndpoints(t *testing.T) {
	cities := []geo.City{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 0}, {X: 3, Y: 0}}
	dm, err := NewDistanceMatrix(cities)
	require.NoError(t, err)

	tour := []int{0, 1, 2, 3}
	require.True(t, twoOpt(tour, dm, false))
	require.Equal(t, 0, tour[0])
	require.Equal(t, 3, tour[3])
	require.InDelta(t, 3.0, dm.TourLength(tour, false), 1e-12)
}
