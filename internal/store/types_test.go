package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/rkfit/internal/fit"
)

func testRecord(id string) *FitRecord {
	return &FitRecord{
		ID:          id,
		Params:      []float64{1000, 0.5, -200, 0.1},
		Cost:        1.5e-9,
		InitialCost: 4.2e7,
		RMS:         5e-6,
		Iterations:  37,
		Samples:     63,
		Timestamp:   time.Now(),
		Config: FitConfig{
			DataPath:      "testdata/cusi.csv",
			Order:         1,
			MaxIterations: 10000,
			Tolerance:     1e-20,
			Method:        fit.MethodLM,
		},
	}
}

func TestFitRecordJSON(t *testing.T) {
	record := testRecord("fit-1")

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded FitRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.ID != record.ID || decoded.Config != record.Config {
		t.Errorf("Round trip changed record: %+v", decoded)
	}
	if !decoded.Timestamp.Equal(record.Timestamp) {
		t.Errorf("Timestamp mismatch: %v vs %v", decoded.Timestamp, record.Timestamp)
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("Decoded record should be valid: %v", err)
	}
}

func TestFitRecordValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *FitRecord)
		field  string
	}{
		{"valid", func(r *FitRecord) {}, ""},
		{"empty id", func(r *FitRecord) { r.ID = "" }, "ID"},
		{"bad order", func(r *FitRecord) { r.Config.Order = 4 }, "Config.Order"},
		{"params length", func(r *FitRecord) { r.Params = r.Params[:3] }, "Params"},
		{"nil params", func(r *FitRecord) { r.Params = nil }, "Params"},
		{"negative cost", func(r *FitRecord) { r.Cost = -1 }, "Cost"},
		{"negative initial cost", func(r *FitRecord) { r.InitialCost = -1 }, "InitialCost"},
		{"negative iterations", func(r *FitRecord) { r.Iterations = -1 }, "Iterations"},
		{"zero timestamp", func(r *FitRecord) { r.Timestamp = time.Time{} }, "Timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord("fit-1")
			tt.mutate(record)

			err := record.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected valid record, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestFitRecordIsCompatible(t *testing.T) {
	record := testRecord("fit-1")

	same := record.Config
	same.MaxIterations = 50
	same.Method = fit.MethodHybrid
	if err := record.IsCompatible(same); err != nil {
		t.Errorf("Budget and method changes should be compatible: %v", err)
	}

	otherData := record.Config
	otherData.DataPath = "other.csv"
	otherOrder := record.Config
	otherOrder.Order = 2

	for name, cfg := range map[string]FitConfig{"DataPath": otherData, "Order": otherOrder} {
		var cerr *CompatibilityError
		if err := record.IsCompatible(cfg); !errors.As(err, &cerr) || cerr.Field != name {
			t.Errorf("Expected %s compatibility error, got %v", name, err)
		}
	}
}

func TestNewFitRecord(t *testing.T) {
	res := &fit.OptimizationResult{
		Params:      []float64{1, 2},
		Order:       0,
		Cost:        3,
		InitialCost: 4,
		RMS:         0.5,
		Iterations:  7,
	}

	record := NewFitRecord("fit-1", res, 12, FitConfig{Method: fit.MethodLM, Order: 3})

	if record.Config.Order != 0 {
		t.Errorf("Order should come from the result, got %d", record.Config.Order)
	}
	if record.Samples != 12 || record.Iterations != 7 || record.RMS != 0.5 {
		t.Errorf("Unexpected record: %+v", record)
	}
	res.Params[0] = 99
	if record.Params[0] != 1 {
		t.Error("Record params must not alias the result")
	}
	if err := record.Validate(); err != nil {
		t.Errorf("New record should be valid: %v", err)
	}

	info := record.ToInfo()
	if info.ID != "fit-1" || info.Method != fit.MethodLM || info.Iterations != 7 {
		t.Errorf("Unexpected info: %+v", info)
	}
}
