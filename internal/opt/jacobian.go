package opt

import (
	"math"
	"sync"
)

// stepScale is the central-difference step relative to max(|p|, 1).
// The cube root of machine epsilon balances truncation and rounding error.
var stepScale = math.Cbrt(2.220446049250313e-16)

// fdStep returns the finite-difference step for a parameter value.
func fdStep(p float64) float64 {
	return stepScale * math.Max(math.Abs(p), 1)
}

// residualJacobian fills jac (row-major, m x n) with d r_i / d p_j using
// central differences. Columns are independent, so with workers > 1 they are
// evaluated concurrently, each worker owning its scratch buffers.
func residualJacobian(res Residualer, params []float64, jac []float64, m, workers int) {
	n := len(params)

	column := func(j int, point, plus, minus []float64) {
		copy(point, params)
		h := fdStep(params[j])

		point[j] = params[j] + h
		res.Residuals(plus, point)
		point[j] = params[j] - h
		res.Residuals(minus, point)

		inv := 1 / (2 * h)
		for i := 0; i < m; i++ {
			jac[i*n+j] = (plus[i] - minus[i]) * inv
		}
	}

	if workers <= 1 || n == 1 {
		point := make([]float64, n)
		plus := make([]float64, m)
		minus := make([]float64, m)
		for j := 0; j < n; j++ {
			column(j, point, plus, minus)
		}
		return
	}

	if workers > n {
		workers = n
	}

	cols := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			point := make([]float64, n)
			plus := make([]float64, m)
			minus := make([]float64, m)
			for j := range cols {
				column(j, point, plus, minus)
			}
		}()
	}
	for j := 0; j < n; j++ {
		cols <- j
	}
	close(cols)
	wg.Wait()
}

// scalarDerivatives estimates the gradient and Hessian of a scalar objective
// at params by central differences. f0 is obj.Evaluate(params).
// hess is row-major n x n and symmetric on return.
func scalarDerivatives(obj Objective, params []float64, f0 float64, grad, hess []float64) {
	n := len(params)
	point := make([]float64, n)
	copy(point, params)

	steps := make([]float64, n)
	for j := range params {
		steps[j] = fdStep(params[j])
	}

	for i := 0; i < n; i++ {
		hi := steps[i]

		point[i] = params[i] + hi
		fp := obj.Evaluate(point)
		point[i] = params[i] - hi
		fm := obj.Evaluate(point)
		point[i] = params[i]

		grad[i] = (fp - fm) / (2 * hi)
		hess[i*n+i] = (fp - 2*f0 + fm) / (hi * hi)

		for j := i + 1; j < n; j++ {
			hj := steps[j]

			point[i], point[j] = params[i]+hi, params[j]+hj
			fpp := obj.Evaluate(point)
			point[j] = params[j] - hj
			fpm := obj.Evaluate(point)
			point[i] = params[i] - hi
			fmm := obj.Evaluate(point)
			point[j] = params[j] + hj
			fmp := obj.Evaluate(point)
			point[i], point[j] = params[i], params[j]

			d := (fpp - fpm - fmp + fmm) / (4 * hi * hj)
			hess[i*n+j] = d
			hess[j*n+i] = d
		}
	}
}
