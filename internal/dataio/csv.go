// Package dataio loads measured excess Gibbs energy tables into datasets.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/rkfit/internal/fit"
)

// ErrNoSamples is returned for tables without a single usable row.
var ErrNoSamples = errors.New("no samples found")

// CelsiusOffset converts degrees Celsius to Kelvin.
const CelsiusOffset = 273.15

// CSVOptions describes the column layout and units of a measurement table.
type CSVOptions struct {
	TempColumn   int  `toml:"temp_column" yaml:"temp_column" json:"temp_column"`
	CompColumn   int  `toml:"comp_column" yaml:"comp_column" json:"comp_column"`
	EnergyColumn int  `toml:"energy_column" yaml:"energy_column" json:"energy_column"`
	Celsius      bool `toml:"celsius" yaml:"celsius" json:"celsius"`             // temperatures in °C
	Percent      bool `toml:"percent" yaml:"percent" json:"percent"`             // compositions in at.%
	SkipHeader   bool `toml:"skip_header" yaml:"skip_header" json:"skip_header"` // first row holds column names
	Fields       int  `toml:"fields" yaml:"fields" json:"fields"`                // rows with another field count are skipped; 0 accepts any
}

// DefaultCSVOptions matches the lab export format: T(°C), x(wt.%), x(at.%), G.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		TempColumn:   0,
		CompColumn:   2,
		EnergyColumn: 3,
		Celsius:      true,
		Percent:      true,
		SkipHeader:   true,
		Fields:       4,
	}
}

// LoadCSV reads a measurement table from path.
func LoadCSV(path string, opts CSVOptions) (fit.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return fit.Dataset{}, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, opts)
	if err != nil {
		return fit.Dataset{}, fmt.Errorf("%s: %w", path, err)
	}

	slog.Info("Loaded dataset", "path", path, "samples", ds.Len())
	return ds, nil
}

// ReadCSV parses a measurement table. Rows whose field count differs from
// opts.Fields are skipped; unparsable numbers are an error.
func ReadCSV(r io.Reader, opts CSVOptions) (fit.Dataset, error) {
	maxCol := max(opts.TempColumn, opts.CompColumn, opts.EnergyColumn)
	if min(opts.TempColumn, opts.CompColumn, opts.EnergyColumn) < 0 {
		return fit.Dataset{}, errors.New("column indices cannot be negative")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var x, T, G []float64
	skipped := 0

	for n := 1; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fit.Dataset{}, fmt.Errorf("failed to read csv: %w", err)
		}

		if n == 1 && opts.SkipHeader {
			continue
		}
		if (opts.Fields > 0 && len(record) != opts.Fields) || len(record) <= maxCol {
			skipped++
			continue
		}

		temp, err := parseField(reader, record, opts.TempColumn)
		if err != nil {
			return fit.Dataset{}, err
		}
		comp, err := parseField(reader, record, opts.CompColumn)
		if err != nil {
			return fit.Dataset{}, err
		}
		energy, err := parseField(reader, record, opts.EnergyColumn)
		if err != nil {
			return fit.Dataset{}, err
		}

		if opts.Celsius {
			temp += CelsiusOffset
		}
		if opts.Percent {
			comp /= 100
		}

		T = append(T, temp)
		x = append(x, comp)
		G = append(G, energy)
	}

	if skipped > 0 {
		slog.Debug("Skipped rows with unexpected field count", "skipped", skipped, "fields", opts.Fields)
	}
	if len(x) == 0 {
		return fit.Dataset{}, ErrNoSamples
	}

	return fit.NewDataset(x, T, G)
}

func parseField(reader *csv.Reader, record []string, col int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
	if err != nil {
		// position only, never the field text
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		line, _ := reader.FieldPos(col)
		return 0, fmt.Errorf("line %d, column %d: invalid number: %w", line, col, err)
	}
	return v, nil
}
