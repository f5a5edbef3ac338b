package aco

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MinPheromone is the floor applied after every update so that no entry
// decays to zero however long the run.
const MinPheromone = 1e-100

// PheromoneMatrix holds the desirability of every directed edge.
// The diagonal is never read.
type PheromoneMatrix struct {
	n   int
	tau *mat.Dense
}

// NewPheromoneMatrix sets every off-diagonal entry to tau0
func NewPheromoneMatrix(n int, tau0 float64) *PheromoneMatrix {
	tau := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				tau.Set(i, j, tau0)
			}
		}
	}
	return &PheromoneMatrix{n: n, tau: tau}
}

// PheromoneFromRows restores a matrix saved with Rows
func PheromoneFromRows(rows [][]float64) (*PheromoneMatrix, error) {
	n := len(rows)
	tau := mat.NewDense(n, n, nil)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("pheromone row %d has %d entries, expected %d", i, len(row), n)
		}
		for j, v := range row {
			if i == j {
				continue
			}
			if !(v > 0) {
				return nil, fmt.Errorf("pheromone entry (%d,%d) must be positive, got %g", i, j, v)
			}
			tau.Set(i, j, v)
		}
	}
	return &PheromoneMatrix{n: n, tau: tau}, nil
}

// Size returns the number of cities
func (p *PheromoneMatrix) Size() int {
	return p.n
}

// At returns the pheromone on edge i->j
func (p *PheromoneMatrix) At(i, j int) float64 {
	return p.tau.At(i, j)
}

// Update evaporates and then reinforces every off-diagonal entry:
//
//	tau[i][j] = tau[i][j]*(1-rho) + deposit[i][j]
//
// A nil deposit only evaporates. Entries are floored at MinPheromone.
func (p *PheromoneMatrix) Update(deposit *TrailDeposit, rho float64) {
	keep := 1 - rho
	raw := p.tau.RawMatrix()

	var dep []float64
	var depStride int
	if deposit != nil {
		draw := deposit.m.RawMatrix()
		dep, depStride = draw.Data, draw.Stride
	}

	for i := 0; i < p.n; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+p.n]
		for j := range row {
			if i == j {
				continue
			}
			v := row[j] * keep
			if dep != nil {
				v += dep[i*depStride+j]
			}
			if v < MinPheromone {
				v = MinPheromone
			}
			row[j] = v
		}
	}
}

// Rows returns a copy of the matrix as row slices
func (p *PheromoneMatrix) Rows() [][]float64 {
	rows := make([][]float64, p.n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, p.tau)
	}
	return rows
}

// TrailDeposit is the reinforcement laid down by one tour: 1/length on every
// traversed edge, zero elsewhere.
type TrailDeposit struct {
	n int
	m *mat.Dense
}

// NewTrailDeposit returns an all-zero deposit for n cities
func NewTrailDeposit(n int) *TrailDeposit {
	return &TrailDeposit{n: n, m: mat.NewDense(n, n, nil)}
}

// AddTour adds 1/length along every edge of tour, including the return edge
// when closed is set.
func (d *TrailDeposit) AddTour(tour []int, length float64, closed bool) {
	if length < minDistance {
		length = minDistance
	}
	amount := 1 / length

	for k := 0; k+1 < len(tour); k++ {
		d.add(tour[k], tour[k+1], amount)
	}
	if closed && len(tour) > 1 {
		d.add(tour[len(tour)-1], tour[0], amount)
	}
}

func (d *TrailDeposit) add(i, j int, amount float64) {
	d.m.Set(i, j, d.m.At(i, j)+amount)
}

// At returns the deposit on edge i->j
func (d *TrailDeposit) At(i, j int) float64 {
	return d.m.At(i, j)
}
