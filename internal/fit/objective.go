package fit

import "math"

// Objective is the sum of squared residuals between a Redlich-Kister model of
// fixed order and a dataset. It is safe for concurrent use.
type Objective struct {
	ds    Dataset
	order int
}

// NewObjective validates the dataset lengths and model order.
func NewObjective(ds Dataset, order int) (*Objective, error) {
	if err := ds.checkLengths(); err != nil {
		return nil, err
	}
	if err := ValidateOrder(order); err != nil {
		return nil, err
	}
	return &Objective{ds: ds, order: order}, nil
}

// Order returns the model order.
func (o *Objective) Order() int {
	return o.order
}

// Dim returns the expected parameter vector length.
func (o *Objective) Dim() int {
	return ParamCount(o.order)
}

// Evaluate returns sum_i (G_i - model(x_i, T_i))^2.
func (o *Objective) Evaluate(params []float64) float64 {
	var sum float64
	for i := range o.ds.X {
		r := o.residual(params, i)
		sum += r * r
	}
	return sum
}

// NumResiduals returns the dataset length.
func (o *Objective) NumResiduals() int {
	return o.ds.Len()
}

// Residuals writes G_i - model(x_i, T_i) into dst.
func (o *Objective) Residuals(dst, params []float64) {
	for i := range o.ds.X {
		dst[i] = o.residual(params, i)
	}
}

// RMS returns the root mean square residual, or 0 for an empty dataset.
func (o *Objective) RMS(params []float64) float64 {
	n := o.ds.Len()
	if n == 0 {
		return 0
	}
	return math.Sqrt(o.Evaluate(params) / float64(n))
}

func (o *Objective) residual(params []float64, i int) float64 {
	m := Model{Params: params, Order: o.order, T: o.ds.T[i]}
	return o.ds.G[i] - m.Evaluate(o.ds.X[i])
}
