package dataio

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cwbudde/rkfit/internal/fit"
)

const labTable = `T,wt,at,G
1100,10,20,-5000
1100,30,50,-7000
# calibration note
1200,50,80,-3000
1200,bad row
`

func TestReadCSVDefaults(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(labTable), DefaultCSVOptions())
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if ds.Len() != 3 {
		t.Fatalf("Expected 3 samples, got %d", ds.Len())
	}

	wantT := []float64{1373.15, 1373.15, 1473.15}
	wantX := []float64{0.2, 0.5, 0.8}
	wantG := []float64{-5000, -7000, -3000}
	for i := range wantT {
		if diff := ds.T[i] - wantT[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("T[%d]: got %f, want %f", i, ds.T[i], wantT[i])
		}
		if ds.X[i] != wantX[i] {
			t.Errorf("X[%d]: got %f, want %f", i, ds.X[i], wantX[i])
		}
		if ds.G[i] != wantG[i] {
			t.Errorf("G[%d]: got %f, want %f", i, ds.G[i], wantG[i])
		}
	}
}

func TestReadCSVCustomColumns(t *testing.T) {
	data := "0.25,-1200,900\n0.75,-800,950\n"
	opts := CSVOptions{TempColumn: 2, CompColumn: 0, EnergyColumn: 1}

	ds, err := ReadCSV(strings.NewReader(data), opts)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}

	if ds.Len() != 2 {
		t.Fatalf("Expected 2 samples, got %d", ds.Len())
	}
	if ds.T[1] != 950 || ds.X[1] != 0.75 || ds.G[1] != -800 {
		t.Errorf("Unexpected second sample: T=%f x=%f G=%f", ds.T[1], ds.X[1], ds.G[1])
	}
}

func TestReadCSVBadNumber(t *testing.T) {
	data := "T,wt,at,G\n1100,10,abc,-5000\n"

	_, err := ReadCSV(strings.NewReader(data), DefaultCSVOptions())
	if err == nil {
		t.Fatal("Expected parse error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Error should name the line, got %v", err)
	}
	if strings.Contains(err.Error(), "abc") {
		t.Errorf("Error should not quote the field, got %v", err)
	}
	if !errors.Is(err, strconv.ErrSyntax) {
		t.Errorf("Expected strconv.ErrSyntax, got %v", err)
	}
}

func TestReadCSVOutOfRangeComposition(t *testing.T) {
	data := "T,wt,at,G\n1100,10,150,-5000\n"

	_, err := ReadCSV(strings.NewReader(data), DefaultCSVOptions())
	if !errors.Is(err, fit.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestReadCSVNegativeColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{TempColumn: -1})
	if err == nil {
		t.Error("Expected error for negative column index")
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cusi.csv")
	if err := os.WriteFile(path, []byte(labTable), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	ds, err := LoadCSV(path, DefaultCSVOptions())
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Errorf("Expected 3 samples, got %d", ds.Len())
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), DefaultCSVOptions()); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestReadCSVNoSamples(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "T,wt,at,G\n"},
		{"wrong field counts", "T,wt,at,G\n1100,10\n1200,20,30\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), DefaultCSVOptions())
			if !errors.Is(err, ErrNoSamples) {
				t.Errorf("Expected ErrNoSamples, got %v", err)
			}
		})
	}
}
