package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rosenbrock is the classic banana valley written as two residuals.
type rosenbrock struct{}

func (rosenbrock) NumResiduals() int { return 2 }

func (rosenbrock) Residuals(dst, p []float64) {
	dst[0] = 10 * (p[1] - p[0]*p[0])
	dst[1] = 1 - p[0]
}

func (r rosenbrock) Evaluate(p []float64) float64 {
	var d [2]float64
	r.Residuals(d[:], p)
	return d[0]*d[0] + d[1]*d[1]
}

// line fits y = a + b*t to fixed samples.
type line struct {
	t, y []float64
}

func (l line) NumResiduals() int { return len(l.t) }

func (l line) Residuals(dst, p []float64) {
	for i := range l.t {
		dst[i] = l.y[i] - (p[0] + p[1]*l.t[i])
	}
}

func (l line) Evaluate(p []float64) float64 {
	var sum float64
	for i := range l.t {
		r := l.y[i] - (p[0] + p[1]*l.t[i])
		sum += r * r
	}
	return sum
}

// uphill has a Jacobian that points downhill for the sum of squares while
// its reported cost only grows as |p| shrinks, so no trial step is accepted.
type uphill struct{}

func (uphill) NumResiduals() int { return 1 }

func (uphill) Residuals(dst, p []float64) { dst[0] = p[0] }

func (uphill) Evaluate(p []float64) float64 { return -p[0] * p[0] }

func newLine() line {
	l := line{}
	for i := 0; i < 20; i++ {
		ti := float64(i) * 0.5
		l.t = append(l.t, ti)
		l.y = append(l.y, 3-1.5*ti)
	}
	return l
}

func TestLevenbergMarquardtRosenbrock(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())

	got, iters := lm.Minimize(rosenbrock{}, []float64{-1.2, 1}, 200, 1e-15)

	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0], 1e-6)
	assert.InDelta(t, 1.0, got[1], 1e-6)
	assert.Less(t, iters, 200)
}

func TestLevenbergMarquardtScalarFallback(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())

	quad := ObjectiveFunc(func(p []float64) float64 {
		dx, dy := p[0]-2, p[1]+1
		return 4*dx*dx + dx*dy + dy*dy
	})

	got, iters := lm.Minimize(quad, []float64{0, 0}, 100, 1e-14)

	assert.InDelta(t, 2.0, got[0], 1e-5)
	assert.InDelta(t, -1.0, got[1], 1e-5)
	assert.Less(t, iters, 100)
}

func TestLevenbergMarquardtLinearModel(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())

	got, iters := lm.Minimize(newLine(), []float64{0, 0}, 50, 1e-12)

	assert.InDelta(t, 3.0, got[0], 1e-8)
	assert.InDelta(t, -1.5, got[1], 1e-8)
	assert.Less(t, iters, 50)
}

func TestLevenbergMarquardtZeroIterations(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())
	initial := []float64{-1.2, 1}

	got, iters := lm.Minimize(rosenbrock{}, initial, 0, 1e-10)

	assert.Equal(t, 0, iters)
	assert.Equal(t, []float64{-1.2, 1}, got)

	got[0] = 99
	assert.Equal(t, -1.2, initial[0], "result must not alias the initial vector")
}

func TestLevenbergMarquardtDoesNotMutateInitial(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())
	initial := []float64{-1.2, 1}

	lm.Minimize(rosenbrock{}, initial, 20, 1e-10)

	assert.Equal(t, []float64{-1.2, 1}, initial)
}

func TestLevenbergMarquardtBudgetExhausted(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())
	start := []float64{-1.2, 1}

	got, iters := lm.Minimize(rosenbrock{}, start, 2, 1e-15)

	assert.Equal(t, 2, iters)
	assert.Less(t, rosenbrock{}.Evaluate(got), rosenbrock{}.Evaluate(start))
}

func TestLevenbergMarquardtSingularColumn(t *testing.T) {
	l := newLine()
	obj := ObjectiveFunc(func(p []float64) float64 { return l.Evaluate(p[:2]) })

	lm := NewLevenbergMarquardt(DefaultLMConfig())

	// The third parameter never affects the cost, so its Hessian row is zero.
	var got []float64
	require.NotPanics(t, func() {
		got, _ = lm.Minimize(obj, []float64{0, 0, 7}, 100, 1e-12)
	})

	assert.InDelta(t, 3.0, got[0], 1e-4)
	assert.InDelta(t, -1.5, got[1], 1e-4)
	assert.InDelta(t, 7.0, got[2], 1e-9)
}

func TestLevenbergMarquardtConstantObjective(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())
	flat := ObjectiveFunc(func(p []float64) float64 { return 5 })

	got, iters := lm.Minimize(flat, []float64{1, 2}, 100, 1e-10)

	assert.Equal(t, []float64{1, 2}, got)
	assert.Less(t, iters, 100)
}

func TestLevenbergMarquardtNoAcceptedStep(t *testing.T) {
	tests := []struct {
		name   string
		config LMConfig
	}{
		{name: "retries exhausted", config: DefaultLMConfig()},
		{name: "damping ceiling", config: LMConfig{MaxRetries: 100, MaxLambda: 1e6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lm := NewLevenbergMarquardt(tt.config)
			observed := 0
			lm.SetObserver(func(Progress) bool {
				observed++
				return true
			})
			initial := []float64{3}

			got, iters := lm.Minimize(uphill{}, initial, 50, 1e-12)

			assert.Equal(t, 1, iters)
			assert.Equal(t, []float64{3}, got)
			assert.Equal(t, []float64{3}, initial)
			assert.Zero(t, observed, "rejected iterations are not reported")
		})
	}
}

func TestLevenbergMarquardtNonFiniteStart(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())
	nan := ObjectiveFunc(func(p []float64) float64 { return math.NaN() })

	got, iters := lm.Minimize(nan, []float64{1}, 10, 1e-10)

	assert.Equal(t, 0, iters)
	assert.Equal(t, []float64{1}, got)
}

func TestLevenbergMarquardtParallelJacobian(t *testing.T) {
	serial := NewLevenbergMarquardt(DefaultLMConfig())

	cfg := DefaultLMConfig()
	cfg.Workers = 4
	parallel := NewLevenbergMarquardt(cfg)

	want, wantIters := serial.Minimize(rosenbrock{}, []float64{-1.2, 1}, 100, 1e-15)
	got, gotIters := parallel.Minimize(rosenbrock{}, []float64{-1.2, 1}, 100, 1e-15)

	assert.Equal(t, want, got)
	assert.Equal(t, wantIters, gotIters)
}

func TestLevenbergMarquardtObserverStops(t *testing.T) {
	lm := NewLevenbergMarquardt(DefaultLMConfig())

	var seen []Progress
	lm.SetObserver(func(p Progress) bool {
		seen = append(seen, p)
		return p.Iteration < 3
	})

	_, iters := lm.Minimize(rosenbrock{}, []float64{-1.2, 1}, 100, 1e-15)

	assert.Equal(t, 3, iters)
	require.Len(t, seen, 3)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i].Cost, seen[i-1].Cost, "accepted steps must decrease the cost")
	}
}

func TestNewLevenbergMarquardtDefaults(t *testing.T) {
	lm := NewLevenbergMarquardt(LMConfig{})
	assert.Equal(t, DefaultLMConfig(), lm.Config())

	lm = NewLevenbergMarquardt(LMConfig{Workers: 3, MaxRetries: 4})
	assert.Equal(t, 3, lm.Config().Workers)
	assert.Equal(t, 4, lm.Config().MaxRetries)
	assert.Equal(t, 1e-3, lm.Config().InitialLambda)
}
