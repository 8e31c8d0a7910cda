package fit

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/rkfit/internal/opt"
)

// Options selects the model and the iteration budget of a fit.
type Options struct {
	Order         int
	MaxIterations int
	Tolerance     float64
	Initial       []float64 // optional; zero vector when nil
}

// OptimizationResult holds the output of an optimization run
type OptimizationResult struct {
	Params        []float64
	Order         int
	Cost          float64
	InitialCost   float64
	RMS           float64
	Iterations    int
	MaxIterations int
}

// BudgetExhausted reports whether the run used the whole iteration budget,
// in which case the fit may be unreliable.
func (r *OptimizationResult) BudgetExhausted() bool {
	return r.MaxIterations > 0 && r.Iterations >= r.MaxIterations
}

// Coefficients decodes the fitted parameters.
func (r *OptimizationResult) Coefficients() []Coefficient {
	pv := &ParamVector{Data: r.Params, Order: r.Order}
	return pv.Coefficients()
}

// Optimize fits a Redlich-Kister model of opts.Order to ds with the given
// minimizer.
func Optimize(ds Dataset, opts Options, minimizer opt.Minimizer) (*OptimizationResult, error) {
	objective, err := NewObjective(ds, opts.Order)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return nil, &InvalidArgumentError{Field: "dataset", Reason: "cannot be empty"}
	}
	if opts.MaxIterations < 0 {
		return nil, &InvalidArgumentError{Field: "maxIterations", Reason: "cannot be negative"}
	}

	dim := objective.Dim()
	initial := make([]float64, dim)
	if opts.Initial != nil {
		if len(opts.Initial) != dim {
			return nil, &InvalidArgumentError{
				Field:  "initial",
				Reason: fmt.Sprintf("length %d does not match %d parameters for order %d", len(opts.Initial), dim, opts.Order),
			}
		}
		copy(initial, opts.Initial)
	}

	if ds.Len() < dim {
		slog.Warn("Fewer samples than parameters, fit is underdetermined",
			"samples", ds.Len(),
			"params", dim,
		)
	}

	slog.Info("Starting fit",
		"order", opts.Order,
		"samples", ds.Len(),
		"max_iterations", opts.MaxIterations,
		"tolerance", opts.Tolerance,
	)

	initialCost := objective.Evaluate(initial)
	params, iterations := minimizer.Minimize(objective, initial, opts.MaxIterations, opts.Tolerance)
	cost := objective.Evaluate(params)

	// Minimizers only ever accept improving steps; keep the start otherwise.
	if !(cost <= initialCost) {
		params, cost = initial, initialCost
	}

	result := &OptimizationResult{
		Params:        params,
		Order:         opts.Order,
		Cost:          cost,
		InitialCost:   initialCost,
		RMS:           objective.RMS(params),
		Iterations:    iterations,
		MaxIterations: opts.MaxIterations,
	}

	slog.Info("Fit complete",
		"order", opts.Order,
		"initial_cost", initialCost,
		"final_cost", cost,
		"rms", result.RMS,
		"iterations", iterations,
	)
	if result.BudgetExhausted() {
		slog.Warn("Iteration budget exhausted, fit may be unreliable", "iterations", iterations)
	}

	return result, nil
}
