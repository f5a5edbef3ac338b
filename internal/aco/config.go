package aco

import (
	"fmt"
	"math"
)

// TourPolicy selects whether a route returns to its start city
type TourPolicy string

const (
	// TourClosed scores Hamiltonian cycles: the edge from the last city back
	// to the first is part of the length and receives pheromone.
	TourClosed TourPolicy = "closed"
	// TourOpen scores Hamiltonian paths with no return edge.
	TourOpen TourPolicy = "open"
)

// Reinforcement selects which tour deposits pheromone after each iteration
type Reinforcement string

const (
	// ReinforceGlobalBest deposits along the best tour seen in the whole run.
	ReinforceGlobalBest Reinforcement = "global-best"
	// ReinforceIterationBest deposits along the best tour of the current iteration.
	ReinforceIterationBest Reinforcement = "iteration-best"
)

// Config holds the colony parameters
type Config struct {
	Ants             int           `json:"ants" yaml:"ants"`
	Iterations       int           `json:"iterations" yaml:"iterations"`
	InitialPheromone float64       `json:"initialPheromone" yaml:"initial_pheromone"`
	Alpha            float64       `json:"alpha" yaml:"alpha"`
	Beta             float64       `json:"beta" yaml:"beta"`
	Evaporation      float64       `json:"evaporation" yaml:"evaporation"`
	Seed             int64         `json:"seed" yaml:"seed"`
	Tour             TourPolicy    `json:"tour,omitempty" yaml:"tour"`
	Reinforcement    Reinforcement `json:"reinforcement,omitempty" yaml:"reinforcement"`

	// Workers > 1 constructs the tours of one iteration in parallel
	Workers int `json:"workers,omitempty" yaml:"workers"`

	// TwoOpt applies 2-opt local search to every constructed tour
	TwoOpt bool `json:"twoOpt,omitempty" yaml:"two_opt"`

	// Patience > 0 stops the run after that many iterations without a
	// relative improvement of at least Threshold
	Patience  int     `json:"patience,omitempty" yaml:"patience"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold"`
}

// DefaultConfig returns the stock colony parameters
func DefaultConfig() Config {
	return Config{
		Ants:             5,
		Iterations:       100,
		InitialPheromone: 0.1,
		Alpha:            1,
		Beta:             5,
		Evaporation:      0.1,
		Seed:             42,
		Tour:             TourClosed,
		Reinforcement:    ReinforceGlobalBest,
		Workers:          1,
		Threshold:        0.001,
	}
}

// Closed reports whether tours return to their start city
func (c Config) Closed() bool {
	return c.Tour != TourOpen
}

// normalized fills the optional enum fields with their defaults
func (c Config) normalized() Config {
	if c.Tour == "" {
		c.Tour = TourClosed
	}
	if c.Reinforcement == "" {
		c.Reinforcement = ReinforceGlobalBest
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Validate checks every parameter and returns a *ConfigurationError for the
// first one out of range.
func (c Config) Validate() error {
	if c.Ants <= 0 {
		return &ConfigurationError{Field: "Ants", Reason: "must be positive"}
	}
	if c.Iterations <= 0 {
		return &ConfigurationError{Field: "Iterations", Reason: "must be positive"}
	}
	if !(c.InitialPheromone > 0) || math.IsInf(c.InitialPheromone, 1) {
		return &ConfigurationError{Field: "InitialPheromone", Reason: "must be positive and finite"}
	}
	if !(c.Evaporation > 0 && c.Evaporation < 1) {
		return &ConfigurationError{Field: "Evaporation", Reason: "must be in (0,1)"}
	}
	if !(c.Alpha >= 0) || math.IsInf(c.Alpha, 1) {
		return &ConfigurationError{Field: "Alpha", Reason: "must be non-negative and finite"}
	}
	if !(c.Beta >= 0) || math.IsInf(c.Beta, 1) {
		return &ConfigurationError{Field: "Beta", Reason: "must be non-negative and finite"}
	}
	switch c.Tour {
	case "", TourClosed, TourOpen:
	default:
		return &ConfigurationError{Field: "Tour", Reason: fmt.Sprintf("unknown policy %q", c.Tour)}
	}
	switch c.Reinforcement {
	case "", ReinforceGlobalBest, ReinforceIterationBest:
	default:
		return &ConfigurationError{Field: "Reinforcement", Reason: fmt.Sprintf("unknown policy %q", c.Reinforcement)}
	}
	if c.Workers < 0 {
		return &ConfigurationError{Field: "Workers", Reason: "cannot be negative"}
	}
	if c.Patience < 0 {
		return &ConfigurationError{Field: "Patience", Reason: "cannot be negative"}
	}
	if !(c.Threshold >= 0) {
		return &ConfigurationError{Field: "Threshold", Reason: "cannot be negative"}
	}
	return nil
}
