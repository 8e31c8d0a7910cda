package fit

import (
	"math"
	"sort"
)

// Isotherm is the subset of a dataset measured at one temperature, sorted
// by composition.
type Isotherm struct {
	T float64
	X []float64
	G []float64
}

// GroupByTemperature splits a dataset into isotherms ordered by temperature.
func GroupByTemperature(ds Dataset) []Isotherm {
	index := make(map[float64]int)
	var groups []Isotherm

	for i := range ds.X {
		g, ok := index[ds.T[i]]
		if !ok {
			g = len(groups)
			index[ds.T[i]] = g
			groups = append(groups, Isotherm{T: ds.T[i]})
		}
		groups[g].X = append(groups[g].X, ds.X[i])
		groups[g].G = append(groups[g].G, ds.G[i])
	}

	for i := range groups {
		sort.Sort(byComposition(groups[i]))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].T < groups[j].T })

	return groups
}

// RMS returns the root mean square residual of the isotherm against a model.
func (iso Isotherm) RMS(params []float64, order int) float64 {
	if len(iso.X) == 0 {
		return 0
	}
	m := Model{Params: params, Order: order, T: iso.T}
	var sum float64
	for i, x := range iso.X {
		r := iso.G[i] - m.Evaluate(x)
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(iso.X)))
}

// Curve samples the model at the isotherm's temperature on points evenly
// spaced compositions covering [0,1], endpoints included.
func Curve(params []float64, order int, T float64, points int) (xs, gs []float64) {
	if points < 2 {
		points = 2
	}
	m := Model{Params: params, Order: order, T: T}
	xs = make([]float64, points)
	gs = make([]float64, points)
	for i := range xs {
		x := float64(i) / float64(points-1)
		xs[i] = x
		gs[i] = m.Evaluate(x)
	}
	return xs, gs
}

type byComposition Isotherm

func (b byComposition) Len() int           { return len(b.X) }
func (b byComposition) Less(i, j int) bool { return b.X[i] < b.X[j] }
func (b byComposition) Swap(i, j int) {
	b.X[i], b.X[j] = b.X[j], b.X[i]
	b.G[i], b.G[j] = b.G[j], b.G[i]
}
