// Package report formats fit results for terminals and files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cwbudde/rkfit/internal/fit"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorWarning = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// CoefficientName returns the label of parameter i: L0, L0T, L1, L1T, ...
func CoefficientName(i int) string {
	name := "L" + strconv.Itoa(i/2)
	if i%2 == 1 {
		name += "T"
	}
	return name
}

// WriteCoefficients prints one "name:<tab>value" line per parameter.
func WriteCoefficients(w io.Writer, params []float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for i, p := range params {
		fmt.Fprintf(tw, "%s:\t%s\n", CoefficientName(i), formatFloat(p))
	}
	return tw.Flush()
}

// Summary renders a styled overview of a result: cost, iteration budget,
// coefficients and per-isotherm RMS deviation.
func Summary(res *fit.OptimizationResult, isotherms []fit.Isotherm) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Redlich-Kister fit, order %d", res.Order)))
	b.WriteString("\n")

	line := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-14s", label)))
		b.WriteString(value)
		b.WriteString("\n")
	}
	line("Initial cost", formatFloat(res.InitialCost))
	line("Final cost", formatFloat(res.Cost))
	line("RMS", formatFloat(res.RMS))
	line("Iterations", fmt.Sprintf("%d / %d", res.Iterations, res.MaxIterations))
	if res.BudgetExhausted() {
		b.WriteString(warningStyle.Render("Iteration budget exhausted; the fit may not have converged."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(CoefficientTable(res.Params))
	b.WriteString("\n")

	if len(isotherms) > 0 {
		b.WriteString("\n")
		b.WriteString(IsothermTable(res.Params, res.Order, isotherms))
		b.WriteString("\n")
	}

	return b.String()
}

// CoefficientTable renders the L_k and L_kT pairs as a table.
func CoefficientTable(params []float64) string {
	t := newTable("k", "L", "LT")
	for i := 0; i+1 < len(params); i += 2 {
		t.Row(strconv.Itoa(i/2), formatFloat(params[i]), formatFloat(params[i+1]))
	}
	return t.Render()
}

// IsothermTable renders sample count and RMS deviation per temperature.
func IsothermTable(params []float64, order int, isotherms []fit.Isotherm) string {
	t := newTable("T (K)", "Samples", "RMS")
	for _, iso := range isotherms {
		t.Row(
			strconv.FormatFloat(iso.T, 'f', 2, 64),
			strconv.Itoa(len(iso.X)),
			formatFloat(iso.RMS(params, order)),
		)
	}
	return t.Render()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(labelStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// WriteCurvesCSV writes the fitted curve of every temperature in temps,
// sampled at points evenly spaced compositions, as T,x,G rows.
func WriteCurvesCSV(w io.Writer, params []float64, order int, temps []float64, points int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"T", "x", "G"}); err != nil {
		return err
	}

	for _, T := range temps {
		xs, gs := fit.Curve(params, order, T, points)
		for i := range xs {
			record := []string{formatFloat(T), formatFloat(xs[i]), formatFloat(gs[i])}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
