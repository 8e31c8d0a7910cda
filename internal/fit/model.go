package fit

import "math"

// GasConstant is R in J/(mol*K).
const GasConstant = 8.314

// Model is a Redlich-Kister excess Gibbs energy curve at a fixed temperature.
type Model struct {
	Params []float64 // length ParamCount(Order)
	Order  int
	T      float64
}

// Evaluate returns the ideal-mixing term plus the excess term at
// composition x.
func (m Model) Evaluate(x float64) float64 {
	return IdealMixing(m.T, x) + m.Excess(x)
}

// Excess returns x(1-x) * sum_k (L_k + LT_k*T) * (2x-1)^k. Terms are
// accumulated from the highest order down to zero.
func (m Model) Excess(x float64) float64 {
	s := 2*x - 1

	var sum float64
	for k := m.Order; k >= 0; k-- {
		l := m.Params[paramsPerOrder*k] + m.Params[paramsPerOrder*k+1]*m.T
		sum += l * math.Pow(s, float64(k))
	}

	return x * (1 - x) * sum
}

// IdealMixing returns R*T*(x ln x + (1-x) ln(1-x)). The pure-component
// endpoints use the one-sided form so log(0) is never evaluated.
func IdealMixing(T, x float64) float64 {
	switch x {
	case 0:
		return GasConstant * T * (1 - x) * math.Log(1-x)
	case 1:
		return GasConstant * T * x * math.Log(x)
	default:
		return GasConstant * T * (x*math.Log(x) + (1-x)*math.Log(1-x))
	}
}
