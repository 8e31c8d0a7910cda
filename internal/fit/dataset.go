package fit

import "fmt"

// Dataset holds parallel composition, temperature and excess Gibbs energy
// samples. It is treated as read-only once constructed.
type Dataset struct {
	X []float64 // mole fraction in [0,1]
	T []float64 // absolute temperature (K)
	G []float64 // measured excess Gibbs energy (J/mol)
}

// NewDataset validates and wraps the three sequences. The slices are not
// copied.
func NewDataset(x, t, g []float64) (Dataset, error) {
	ds := Dataset{X: x, T: t, G: g}
	if err := ds.checkLengths(); err != nil {
		return Dataset{}, err
	}
	for i := range x {
		if x[i] < 0 || x[i] > 1 {
			return Dataset{}, &InvalidArgumentError{
				Field:  "x",
				Reason: fmt.Sprintf("sample %d: composition %g outside [0,1]", i, x[i]),
			}
		}
		if !(t[i] > 0) {
			return Dataset{}, &InvalidArgumentError{
				Field:  "T",
				Reason: fmt.Sprintf("sample %d: temperature %g must be positive", i, t[i]),
			}
		}
	}
	return ds, nil
}

// Len returns the number of samples.
func (d Dataset) Len() int {
	return len(d.X)
}

func (d Dataset) checkLengths() error {
	if len(d.X) != len(d.T) || len(d.X) != len(d.G) {
		return &InvalidArgumentError{
			Field:  "dataset",
			Reason: fmt.Sprintf("sequences must have equal length (x=%d, T=%d, G=%d)", len(d.X), len(d.T), len(d.G)),
		}
	}
	return nil
}
