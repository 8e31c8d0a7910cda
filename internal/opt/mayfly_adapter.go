package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library.
// The library only supports a scalar bound shared by all dimensions, so the
// search runs in the unit cube and positions are mapped onto [lower, upper]
// per dimension before evaluation.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	toParams := func(unit []float64) []float64 {
		p := make([]float64, dim)
		for i := range p {
			p[i] = lower[i] + unit[i]*(upper[i]-lower[i])
		}
		return p
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(toParams(unit))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box centre if the search cannot run
		slog.Warn("Mayfly search failed", "error", err)
		centre := make([]float64, dim)
		for i := range centre {
			centre[i] = 0.5
		}
		p := toParams(centre)
		return p, eval(p)
	}

	return toParams(result.GlobalBest.Position), result.GlobalBest.Cost
}

// Hybrid runs a bounded global search and refines the better of its result
// and the initial vector with a local minimizer.
type Hybrid struct {
	Global Optimizer
	Local  Minimizer
	Lower  []float64
	Upper  []float64
}

// Minimize implements Minimizer. The iteration count is the local one.
func (h *Hybrid) Minimize(obj Objective, initial []float64, maxIterations int, tol float64) ([]float64, int) {
	if maxIterations <= 0 {
		return append([]float64(nil), initial...), 0
	}

	start := initial
	if h.Global != nil && len(h.Lower) == len(initial) && len(h.Upper) == len(initial) {
		initialCost := obj.Evaluate(initial)
		best, bestCost := h.Global.Run(obj.Evaluate, h.Lower, h.Upper, len(initial))
		slog.Info("Global search complete", "initial_cost", initialCost, "global_cost", bestCost)
		if isFinite(bestCost) && (bestCost < initialCost || !isFinite(initialCost)) {
			start = best
		}
	}

	return h.Local.Minimize(obj, start, maxIterations, tol)
}
