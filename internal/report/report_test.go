package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/rkfit/internal/fit"
)

func TestCoefficientName(t *testing.T) {
	tests := []struct {
		i    int
		want string
	}{
		{0, "L0"},
		{1, "L0T"},
		{2, "L1"},
		{7, "L3T"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CoefficientName(tt.i))
	}
}

func TestWriteCoefficients(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCoefficients(&buf, []float64{1000, 0.5, -200, 0.1}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "L0:"))
	assert.True(t, strings.HasSuffix(lines[0], "1000"))
	assert.True(t, strings.HasPrefix(lines[3], "L1T:"))
	assert.True(t, strings.HasSuffix(lines[3], "0.1"))
}

func TestSummary(t *testing.T) {
	res := &fit.OptimizationResult{
		Params:        []float64{1000, 0.5, -200, 0.1},
		Order:         1,
		Cost:          1e-12,
		InitialCost:   5e7,
		RMS:           1e-7,
		Iterations:    50,
		MaxIterations: 50,
	}
	isotherms := []fit.Isotherm{
		{T: 1000, X: []float64{0.2, 0.5}, G: []float64{-3000, -4000}},
	}

	out := Summary(res, isotherms)

	assert.Contains(t, out, "order 1")
	assert.Contains(t, out, "50 / 50")
	assert.Contains(t, out, "budget exhausted")
	assert.Contains(t, out, "-200")
	assert.Contains(t, out, "1000.00")

	res.Iterations = 10
	assert.NotContains(t, Summary(res, nil), "budget exhausted")
}

func TestWriteCurvesCSV(t *testing.T) {
	params := []float64{1000, 0.5, -200, 0.1}

	var buf bytes.Buffer
	require.NoError(t, WriteCurvesCSV(&buf, params, 1, []float64{1000, 1200}, 5))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+2*5)
	assert.Equal(t, []string{"T", "x", "G"}, records[0])
	assert.Equal(t, "1000", records[1][0])
	assert.Equal(t, "0", records[1][1])
	assert.Equal(t, "1200", records[6][0])
	assert.Equal(t, "1", records[10][1])
}
