package opt

// Objective is a scalar function to minimize.
type Objective interface {
	Evaluate(params []float64) float64
}

// ObjectiveFunc adapts an ordinary function to the Objective interface.
type ObjectiveFunc func(params []float64) float64

// Evaluate calls f(params).
func (f ObjectiveFunc) Evaluate(params []float64) float64 {
	return f(params)
}

// Residualer is implemented by least-squares objectives that can expose
// their individual residuals. Evaluate must equal the sum of the squared
// residuals.
type Residualer interface {
	// NumResiduals returns the number of residuals written by Residuals.
	NumResiduals() int

	// Residuals writes the residual vector for params into dst.
	Residuals(dst, params []float64)
}

// Minimizer defines a local optimization algorithm interface
type Minimizer interface {
	// Minimize searches for a minimum of obj starting from initial.
	// Returns: best parameters found and the number of iterations used
	Minimize(obj Objective, initial []float64, maxIterations int, tol float64) ([]float64, int)
}

// Optimizer defines a bounded global optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Progress is reported to an Observer after every completed iteration.
type Progress struct {
	Iteration int
	Cost      float64
	Lambda    float64
	Params    []float64 // snapshot; safe to retain
}

// Observer is called at iteration boundaries. Returning false stops the
// minimization, which then reports the best vector found so far.
type Observer func(Progress) bool
