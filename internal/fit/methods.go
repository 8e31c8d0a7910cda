package fit

import (
	"fmt"

	"github.com/cwbudde/rkfit/internal/opt"
)

// Fitting methods.
const (
	MethodLM     = "lm"     // Levenberg-Marquardt from the initial vector
	MethodHybrid = "hybrid" // mayfly global search, then Levenberg-Marquardt
)

// MinimizerConfig selects and tunes the minimizer built by NewMinimizer.
type MinimizerConfig struct {
	Method  string
	Workers int

	// Global search settings, used by MethodHybrid only.
	GlobalIterations int
	PopSize          int
	Seed             int64
}

// ValidateMethod rejects unknown method names.
func ValidateMethod(method string) error {
	switch method {
	case MethodLM, MethodHybrid:
		return nil
	default:
		return &InvalidArgumentError{
			Field:  "method",
			Reason: fmt.Sprintf("unknown method %q (want %s or %s)", method, MethodLM, MethodHybrid),
		}
	}
}

// NewMinimizer builds the minimizer for a fit of the given order on ds.
// observer may be nil.
func NewMinimizer(cfg MinimizerConfig, ds Dataset, order int, observer opt.Observer) (opt.Minimizer, error) {
	if err := ValidateMethod(cfg.Method); err != nil {
		return nil, err
	}

	lmConfig := opt.DefaultLMConfig()
	lmConfig.Workers = cfg.Workers
	lm := opt.NewLevenbergMarquardt(lmConfig)
	if observer != nil {
		lm.SetObserver(observer)
	}

	if cfg.Method == MethodLM {
		return lm, nil
	}

	bounds := SearchBounds(ds, order)
	return &opt.Hybrid{
		Global: opt.NewMayfly(cfg.GlobalIterations, cfg.PopSize, cfg.Seed),
		Local:  lm,
		Lower:  bounds.Lower,
		Upper:  bounds.Upper,
	}, nil
}
