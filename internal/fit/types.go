package fit

import (
	"fmt"
	"math"
)

// MaxOrder is the highest supported Redlich-Kister order.
const MaxOrder = 3

const paramsPerOrder = 2

// ParamCount returns the parameter vector length for a model order.
func ParamCount(order int) int {
	return paramsPerOrder * (order + 1)
}

// ValidateOrder rejects orders outside 0..MaxOrder.
func ValidateOrder(order int) error {
	if order < 0 || order > MaxOrder {
		return &InvalidArgumentError{
			Field:  "order",
			Reason: fmt.Sprintf("must be in 0..%d, got %d", MaxOrder, order),
		}
	}
	return nil
}

// Coefficient is one temperature-dependent interaction term L + LT*T.
type Coefficient struct {
	L  float64 // constant part (J/mol)
	LT float64 // temperature slope (J/(mol*K))
}

// At evaluates the coefficient at temperature T.
func (c Coefficient) At(T float64) float64 {
	return c.L + c.LT*T
}

// ParamVector views a flat parameter slice as the coefficient pairs of an
// order-n model: Data[2k] is L_k, Data[2k+1] is L_kT.
type ParamVector struct {
	Data  []float64
	Order int
}

// DecodeCoefficient reads the order-k coefficient from the vector
func (pv *ParamVector) DecodeCoefficient(k int) Coefficient {
	offset := k * paramsPerOrder
	return Coefficient{
		L:  pv.Data[offset+0],
		LT: pv.Data[offset+1],
	}
}

// Coefficients decodes every order, lowest first.
func (pv *ParamVector) Coefficients() []Coefficient {
	out := make([]Coefficient, pv.Order+1)
	for k := range out {
		out[k] = pv.DecodeCoefficient(k)
	}
	return out
}

// Bounds defines a search box for global optimizers
type Bounds struct {
	Lower []float64
	Upper []float64
	Order int
}

// NewBounds creates a symmetric box with |L| <= scale and |LT| <= scale/tMax,
// so that both halves of a coefficient can contribute the same magnitude at
// the hottest sample.
func NewBounds(order int, scale, tMax float64) *Bounds {
	n := ParamCount(order)
	lower := make([]float64, n)
	upper := make([]float64, n)

	if tMax <= 0 {
		tMax = 1
	}

	for k := 0; k <= order; k++ {
		offset := k * paramsPerOrder
		lower[offset+0], upper[offset+0] = -scale, scale
		lower[offset+1], upper[offset+1] = -scale/tMax, scale/tMax
	}

	return &Bounds{
		Lower: lower,
		Upper: upper,
		Order: order,
	}
}

// SearchBounds sizes a box from the data: x(1-x) <= 1/4, so an excess of
// magnitude E needs |L| of at least 4E. The box is twice that.
func SearchBounds(ds Dataset, order int) *Bounds {
	var excess, tMax float64
	for i := range ds.X {
		e := math.Abs(ds.G[i] - IdealMixing(ds.T[i], ds.X[i]))
		if e > excess {
			excess = e
		}
		if ds.T[i] > tMax {
			tMax = ds.T[i]
		}
	}
	return NewBounds(order, math.Max(8*excess, 1), tMax)
}
