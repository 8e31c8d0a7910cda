package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cwbudde/rkfit/internal/fit"
)

// FitConfig records how a fit was produced.
type FitConfig struct {
	DataPath      string  `json:"dataPath,omitempty"` // empty for inline datasets
	Order         int     `json:"order"`
	MaxIterations int     `json:"maxIterations"`
	Tolerance     float64 `json:"tolerance"`
	Method        string  `json:"method"`
}

// FitRecord is a persisted fit result. Refinement runs start from Params and
// must use a compatible configuration.
type FitRecord struct {
	ID          string    `json:"id"`
	Params      []float64 `json:"params"`
	Cost        float64   `json:"cost"`
	InitialCost float64   `json:"initialCost"`
	RMS         float64   `json:"rms"`
	Iterations  int       `json:"iterations"`
	Samples     int       `json:"samples"`
	Timestamp   time.Time `json:"timestamp"`
	Config      FitConfig `json:"config"`
}

// FitInfo is the listing view of a record.
type FitInfo struct {
	ID         string    `json:"id"`
	Cost       float64   `json:"cost"`
	RMS        float64   `json:"rms"`
	Iterations int       `json:"iterations"`
	Order      int       `json:"order"`
	Method     string    `json:"method"`
	DataPath   string    `json:"dataPath,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFitRecord builds a record from an optimization result.
func NewFitRecord(id string, res *fit.OptimizationResult, samples int, config FitConfig) *FitRecord {
	params := make([]float64, len(res.Params))
	copy(params, res.Params)
	config.Order = res.Order

	return &FitRecord{
		ID:          id,
		Params:      params,
		Cost:        res.Cost,
		InitialCost: res.InitialCost,
		RMS:         res.RMS,
		Iterations:  res.Iterations,
		Samples:     samples,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a record to its listing view.
func (r *FitRecord) ToInfo() FitInfo {
	return FitInfo{
		ID:         r.ID,
		Cost:       r.Cost,
		RMS:        r.RMS,
		Iterations: r.Iterations,
		Order:      r.Config.Order,
		Method:     r.Config.Method,
		DataPath:   r.Config.DataPath,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks a record before it is saved or refined.
func (r *FitRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if err := fit.ValidateOrder(r.Config.Order); err != nil {
		return &ValidationError{Field: "Config.Order", Reason: err.Error()}
	}
	if want := fit.ParamCount(r.Config.Order); len(r.Params) != want {
		return &ValidationError{
			Field:  "Params",
			Reason: fmt.Sprintf("length mismatch: expected %d params for order %d", want, r.Config.Order),
		}
	}
	if r.Cost < 0 {
		return &ValidationError{Field: "Cost", Reason: "cannot be negative"}
	}
	if r.InitialCost < 0 {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be negative"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents an invalid fit record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether a refinement with config may start from this
// record. Data path and order must match; budget and method may differ.
func (r *FitRecord) IsCompatible(config FitConfig) error {
	if r.Config.DataPath != config.DataPath {
		return &CompatibilityError{
			Field:    "DataPath",
			Expected: r.Config.DataPath,
			Actual:   config.DataPath,
		}
	}
	if r.Config.Order != config.Order {
		return &CompatibilityError{
			Field:    "Order",
			Expected: strconv.Itoa(r.Config.Order),
			Actual:   strconv.Itoa(config.Order),
		}
	}
	return nil
}

// CompatibilityError represents a refinement config mismatch.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
