package fit

import (
	"testing"

	"github.com/cwbudde/rkfit/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizeRecoversGenerator(t *testing.T) {
	want := []float64{1000, 0.5, -200, 0.1}
	ds := synthetic(t, want, 1)

	lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
	result, err := Optimize(ds, Options{Order: 1, MaxIterations: 100, Tolerance: 1e-12}, lm)
	require.NoError(t, err)

	require.Len(t, result.Params, 4)
	for i := range want {
		assert.InDelta(t, want[i], result.Params[i], 1e-6, "param %d", i)
	}
	assert.Less(t, result.Iterations, 100)
	assert.False(t, result.BudgetExhausted())
	assert.Less(t, result.Cost, result.InitialCost)
}

func TestOptimizeAllOrders(t *testing.T) {
	for order := 0; order <= MaxOrder; order++ {
		want := generatorParams(order)
		ds := synthetic(t, want, order)

		lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
		result, err := Optimize(ds, Options{Order: order, MaxIterations: 200, Tolerance: 1e-12}, lm)
		require.NoError(t, err)

		assert.Less(t, result.RMS, 1e-6, "order %d", order)
		assert.Less(t, result.Iterations, 200, "order %d", order)
	}
}

// A single isotherm makes every L_k and L_kT column collinear, so the
// normal matrix is singular and only the damping keeps it solvable.
func TestOptimizeSingleIsotherm(t *testing.T) {
	const temp = 1373.15

	for order := 0; order <= MaxOrder; order++ {
		m := Model{Params: generatorParams(order), Order: order, T: temp}
		var x, T, G []float64
		for i := 0; i <= 20; i++ {
			xi := float64(i) / 20
			x = append(x, xi)
			T = append(T, temp)
			G = append(G, m.Evaluate(xi))
		}
		ds, err := NewDataset(x, T, G)
		require.NoError(t, err)

		lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
		var result *OptimizationResult
		require.NotPanics(t, func() {
			result, err = Optimize(ds, Options{Order: order, MaxIterations: 200, Tolerance: 1e-12}, lm)
		}, "order %d", order)
		require.NoError(t, err)

		assert.Less(t, result.RMS, 1e-4, "order %d", order)
		assert.Less(t, result.Cost, result.InitialCost, "order %d", order)
	}
}

func TestOptimizeReproducesData(t *testing.T) {
	ds := synthetic(t, generatorParams(1), 1)

	lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
	result, err := Optimize(ds, Options{Order: 1, MaxIterations: 100, Tolerance: 1e-12}, lm)
	require.NoError(t, err)

	for i := range ds.X {
		m := Model{Params: result.Params, Order: 1, T: ds.T[i]}
		assert.InDelta(t, ds.G[i], m.Evaluate(ds.X[i]), 1e-6, "sample %d", i)
	}
}

func TestOptimizeNoisyDataNeverWorse(t *testing.T) {
	ds := noisy(synthetic(t, generatorParams(2), 2), 50, 11)

	for order := 0; order <= MaxOrder; order++ {
		lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
		result, err := Optimize(ds, Options{Order: order, MaxIterations: 100, Tolerance: 1e-10}, lm)
		require.NoError(t, err)

		assert.LessOrEqual(t, result.Cost, result.InitialCost, "order %d", order)
	}
}

func TestOptimizeZeroIterations(t *testing.T) {
	ds := synthetic(t, generatorParams(1), 1)
	initial := []float64{10, 20, 30, 40}

	lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
	result, err := Optimize(ds, Options{Order: 1, MaxIterations: 0, Initial: initial}, lm)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Iterations)
	assert.Equal(t, initial, result.Params)
	assert.Equal(t, result.InitialCost, result.Cost)
}

func TestOptimizeBudgetExhausted(t *testing.T) {
	ds := noisy(synthetic(t, generatorParams(3), 3), 50, 5)

	lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())
	result, err := Optimize(ds, Options{Order: 3, MaxIterations: 1, Tolerance: 1e-20}, lm)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Iterations)
	assert.True(t, result.BudgetExhausted())
}

func TestOptimizeValidation(t *testing.T) {
	ds := synthetic(t, generatorParams(1), 1)
	lm := opt.NewLevenbergMarquardt(opt.DefaultLMConfig())

	tests := []struct {
		name string
		ds   Dataset
		opts Options
	}{
		{"order too high", ds, Options{Order: 4, MaxIterations: 10}},
		{"empty dataset", Dataset{}, Options{Order: 0, MaxIterations: 10}},
		{"negative budget", ds, Options{Order: 1, MaxIterations: -1}},
		{"initial length", ds, Options{Order: 1, MaxIterations: 10, Initial: []float64{1, 2}}},
		{"mismatched dataset", Dataset{X: ds.X, T: ds.T[:3], G: ds.G}, Options{Order: 1, MaxIterations: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Optimize(tt.ds, tt.opts, lm)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestOptimizeHybrid(t *testing.T) {
	want := generatorParams(1)
	ds := synthetic(t, want, 1)
	bounds := SearchBounds(ds, 1)

	h := &opt.Hybrid{
		Global: opt.NewMayfly(20, 20, 42),
		Local:  opt.NewLevenbergMarquardt(opt.DefaultLMConfig()),
		Lower:  bounds.Lower,
		Upper:  bounds.Upper,
	}

	result, err := Optimize(ds, Options{Order: 1, MaxIterations: 100, Tolerance: 1e-12}, h)
	require.NoError(t, err)

	assert.Less(t, result.RMS, 1e-6)
}

func TestOptimizationResultCoefficients(t *testing.T) {
	r := &OptimizationResult{Params: []float64{1, 2, 3, 4}, Order: 1}

	coefs := r.Coefficients()
	require.Len(t, coefs, 2)
	assert.Equal(t, Coefficient{L: 3, LT: 4}, coefs[1])
}
