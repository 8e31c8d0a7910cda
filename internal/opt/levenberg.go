package opt

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// maxCond is the largest condition number accepted for the damped normal
// matrix before the step is treated as rejected.
const maxCond = 1 / 2.220446049250313e-16

// LMConfig holds the damping strategy of the Levenberg-Marquardt optimizer.
// Zero values are replaced with defaults by NewLevenbergMarquardt.
type LMConfig struct {
	InitialLambda float64 // default 1e-3
	LambdaFactor  float64 // multiply on rejection, divide on acceptance; default 10
	MinLambda     float64 // default 1e-12
	MaxLambda     float64 // stagnation ceiling; default 1e16
	MaxRetries    int     // rejected trials per iteration; default 10
	Workers       int     // concurrent Jacobian columns; default 1
}

// DefaultLMConfig returns the standard Marquardt damping schedule.
func DefaultLMConfig() LMConfig {
	return LMConfig{
		InitialLambda: 1e-3,
		LambdaFactor:  10,
		MinLambda:     1e-12,
		MaxLambda:     1e16,
		MaxRetries:    10,
		Workers:       1,
	}
}

// LevenbergMarquardt minimizes least-squares objectives with damped
// Gauss-Newton steps and a finite-difference Jacobian.
type LevenbergMarquardt struct {
	config   LMConfig
	observer Observer
}

// NewLevenbergMarquardt creates an optimizer with the given config.
func NewLevenbergMarquardt(config LMConfig) *LevenbergMarquardt {
	def := DefaultLMConfig()
	if config.InitialLambda <= 0 {
		config.InitialLambda = def.InitialLambda
	}
	if config.LambdaFactor <= 1 {
		config.LambdaFactor = def.LambdaFactor
	}
	if config.MinLambda <= 0 {
		config.MinLambda = def.MinLambda
	}
	if config.MaxLambda <= 0 {
		config.MaxLambda = def.MaxLambda
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	return &LevenbergMarquardt{config: config}
}

// Config returns the effective configuration.
func (lm *LevenbergMarquardt) Config() LMConfig {
	return lm.config
}

// SetObserver registers a hook called after every accepted iteration.
func (lm *LevenbergMarquardt) SetObserver(o Observer) {
	lm.observer = o
}

// Minimize runs at most maxIterations LM iterations starting from initial
// and returns the best vector found together with the iterations used.
// initial is not modified. The run stops early when an accepted step improves
// the cost by less than tol relative to the previous cost, when the cost
// reaches zero, or when damping exceeds MaxLambda.
func (lm *LevenbergMarquardt) Minimize(obj Objective, initial []float64, maxIterations int, tol float64) ([]float64, int) {
	params := append([]float64(nil), initial...)
	n := len(params)
	if maxIterations <= 0 || n == 0 {
		return params, 0
	}

	cost := obj.Evaluate(params)
	if !isFinite(cost) {
		slog.Warn("Objective is not finite at the initial vector", "cost", cost)
		return params, 0
	}
	if cost == 0 {
		return params, 0
	}

	sys := newNormalSystem(obj, n, lm.config.Workers)
	tracker := NewConvergenceTracker(DefaultConvergenceConfig(tol))
	tracker.Update(cost)

	var (
		lambda = lm.config.InitialLambda
		a      = mat.NewSymDense(n, nil)
		damped = mat.NewSymDense(n, nil)
		grad   = make([]float64, n)
		scale  = make([]float64, n)
		rhs    = mat.NewVecDense(n, nil)
		step   = mat.NewVecDense(n, nil)
		trial  = make([]float64, n)
		chol   mat.Cholesky
	)

	for iter := 1; iter <= maxIterations; iter++ {
		sys.build(params, cost, a, grad)

		if floats.Norm(grad, math.Inf(1)) == 0 {
			slog.Debug("Zero gradient, stopping", "iteration", iter, "cost", cost)
			return params, iter
		}

		// Jacobi scaling: in scaled coordinates diag(A) is unity, so
		// lambda*I there equals lambda*diag(A) in the original ones.
		for i := 0; i < n; i++ {
			d := math.Sqrt(math.Abs(a.At(i, i)))
			if d == 0 || !isFinite(d) {
				d = 1
			}
			scale[i] = d
			rhs.SetVec(i, -grad[i]/d)
		}

		accepted := false
		for retry := 0; retry < lm.config.MaxRetries; retry++ {
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := a.At(i, j) / (scale[i] * scale[j])
					if i == j {
						v += lambda
					}
					damped.SetSym(i, j, v)
				}
			}

			if solved := solveDamped(&chol, damped, rhs, step); solved {
				for i := 0; i < n; i++ {
					trial[i] = params[i] + step.AtVec(i)/scale[i]
				}
				trialCost := obj.Evaluate(trial)

				if isFinite(trialCost) && trialCost < cost {
					copy(params, trial)
					cost = trialCost
					lambda = math.Max(lambda/lm.config.LambdaFactor, lm.config.MinLambda)
					accepted = true
					break
				}
			}

			lambda *= lm.config.LambdaFactor
			if lambda > lm.config.MaxLambda {
				slog.Debug("Damping exceeded ceiling, stopping",
					"iteration", iter,
					"lambda", lambda,
					"cost", cost,
				)
				return params, iter
			}
		}

		if !accepted {
			slog.Debug("No improving step found, stopping",
				"iteration", iter,
				"retries", lm.config.MaxRetries,
				"cost", cost,
			)
			return params, iter
		}

		slog.Debug("LM iteration", "iteration", iter, "cost", cost, "lambda", lambda)

		if lm.observer != nil {
			snapshot := append([]float64(nil), params...)
			if !lm.observer(Progress{Iteration: iter, Cost: cost, Lambda: lambda, Params: snapshot}) {
				slog.Info("Minimization stopped by observer", "iteration", iter, "cost", cost)
				return params, iter
			}
		}

		if cost == 0 || tracker.Update(cost) {
			return params, iter
		}
	}

	return params, maxIterations
}

// solveDamped factorizes the damped normal matrix and solves for the scaled
// step. It reports false for indefinite or ill-conditioned systems.
func solveDamped(chol *mat.Cholesky, damped *mat.SymDense, rhs, step *mat.VecDense) bool {
	if ok := chol.Factorize(damped); !ok {
		return false
	}
	if cond := chol.Cond(); cond > maxCond || !isFinite(cond) {
		return false
	}
	if err := chol.SolveVecTo(step, rhs); err != nil {
		return false
	}
	for i := 0; i < step.Len(); i++ {
		if !isFinite(step.AtVec(i)) {
			return false
		}
	}
	return true
}

// normalSystem builds the undamped normal matrix A and gradient-like vector
// g such that a step solves (A + lambda*diag(A)) delta = -g.
type normalSystem interface {
	build(params []float64, cost float64, a *mat.SymDense, g []float64)
}

func newNormalSystem(obj Objective, n, workers int) normalSystem {
	if res, ok := obj.(Residualer); ok && res.NumResiduals() > 0 {
		m := res.NumResiduals()
		s := &residualSystem{
			res:     res,
			m:       m,
			workers: workers,
			r:       make([]float64, m),
			jac:     make([]float64, m*n),
		}
		s.jm = mat.NewDense(m, n, s.jac)
		return s
	}
	return &scalarSystem{
		obj:  obj,
		hess: make([]float64, n*n),
	}
}

// residualSystem forms the Gauss-Newton approximation A = JᵀJ, g = Jᵀr.
type residualSystem struct {
	res     Residualer
	m       int
	workers int
	r       []float64
	jac     []float64
	jm      *mat.Dense // view over jac
}

func (s *residualSystem) build(params []float64, _ float64, a *mat.SymDense, g []float64) {
	s.res.Residuals(s.r, params)
	residualJacobian(s.res, params, s.jac, s.m, s.workers)

	a.SymOuterK(1, s.jm.T())
	gv := mat.NewVecDense(len(g), g)
	gv.MulVec(s.jm.T(), mat.NewVecDense(s.m, s.r))
}

// scalarSystem uses the finite-difference Hessian and gradient of the
// objective itself, for objectives that do not expose residuals.
type scalarSystem struct {
	obj  Objective
	hess []float64
}

func (s *scalarSystem) build(params []float64, cost float64, a *mat.SymDense, g []float64) {
	n := len(params)
	scalarDerivatives(s.obj, params, cost, g, s.hess)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, s.hess[i*n+j])
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
