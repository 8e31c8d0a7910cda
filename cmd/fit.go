package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/rkfit/internal/config"
	"github.com/cwbudde/rkfit/internal/dataio"
	"github.com/cwbudde/rkfit/internal/fit"
	"github.com/cwbudde/rkfit/internal/opt"
	"github.com/cwbudde/rkfit/internal/report"
	"github.com/cwbudde/rkfit/internal/store"
)

// fitFlags are shared by fit and refine. Only flags set on the command line
// override the loaded config.
type fitFlags struct {
	data    string
	order   int
	iters   int
	tol     float64
	method  string
	workers int
	initial []float64
	celsius bool
	percent bool
	dataDir string
	save    bool
	trace   bool
	curves  string
	points  int
	format  string
}

var fitOpts fitFlags

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a Redlich-Kister model to a data file",
	Long: `Loads a CSV table of (T, x, G) samples, fits a Redlich-Kister model of
the requested order and prints the coefficients with per-isotherm residuals.`,
	Example: `  rkfit fit --data cusi.csv --order 2
  rkfit fit --data cusi.csv --method hybrid --save --curves curves.csv`,
	RunE: runFit,
}

func init() {
	fitOpts.register(fitCmd, true)
	fitCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(fitCmd)
}

func (f *fitFlags) register(cmd *cobra.Command, withOrder bool) {
	d := config.Default()
	flags := cmd.Flags()

	flags.StringVar(&f.data, "data", "", "CSV file with T, x and G columns")
	if withOrder {
		flags.IntVar(&f.order, "order", d.Fit.Order, "Model order (0-3)")
		flags.Float64SliceVar(&f.initial, "initial", nil, "Initial parameters L0,L0T,L1,L1T,... (default zeros)")
	}
	flags.IntVar(&f.iters, "iters", d.Fit.MaxIterations, "Max iterations")
	flags.Float64Var(&f.tol, "tol", d.Fit.Tolerance, "Relative cost improvement below which the fit stops")
	flags.StringVar(&f.method, "method", d.Fit.Method, "Fitting method: lm, hybrid")
	flags.IntVar(&f.workers, "workers", d.Fit.Workers, "Goroutines for Jacobian columns")
	flags.BoolVar(&f.celsius, "celsius", d.Data.Celsius, "Temperatures in the file are in °C")
	flags.BoolVar(&f.percent, "percent", d.Data.Percent, "Compositions in the file are in percent")
	flags.StringVar(&f.dataDir, "data-dir", d.Store.DataDir, "Base directory for stored fits")
	flags.BoolVar(&f.save, "save", false, "Store the result for later refinement")
	flags.BoolVar(&f.trace, "trace", false, "Write the iteration trace (implies --save)")
	flags.StringVar(&f.curves, "curves", "", "Write fitted isotherm curves as CSV to this path")
	flags.IntVar(&f.points, "points", 101, "Compositions sampled per curve")
	flags.StringVar(&f.format, "format", "table", "Output format: table, plain")
}

// apply copies explicitly set flags over c and validates the result.
func (f *fitFlags) apply(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("order") {
		c.Fit.Order = f.order
	}
	if flags.Changed("initial") {
		c.Fit.Initial = f.initial
	}
	if flags.Changed("iters") {
		c.Fit.MaxIterations = f.iters
	}
	if flags.Changed("tol") {
		c.Fit.Tolerance = f.tol
	}
	if flags.Changed("method") {
		c.Fit.Method = f.method
	}
	if flags.Changed("workers") {
		c.Fit.Workers = f.workers
	}
	if flags.Changed("celsius") {
		c.Data.Celsius = f.celsius
	}
	if flags.Changed("percent") {
		c.Data.Percent = f.percent
	}
	if flags.Changed("data-dir") {
		c.Store.DataDir = f.dataDir
	}
	if f.format != "table" && f.format != "plain" {
		return fmt.Errorf("unknown format %q (want table or plain)", f.format)
	}
	return c.Validate()
}

// fitRun is one fit from data file to printed report.
type fitRun struct {
	cfg         *config.Config
	dataPath    string
	id         string // required when tracing
	trace      bool
	deferTrace bool // hold entries until flushTrace appends them
	pending    []store.TraceEntry
	curves     string
	points     int
	format     string
	out        io.Writer
}

func (r *fitRun) execute(ctx context.Context) (*fit.OptimizationResult, fit.Dataset, error) {
	ds, err := dataio.LoadCSV(r.dataPath, r.cfg.Data)
	if err != nil {
		return nil, fit.Dataset{}, err
	}

	var tw *store.TraceWriter
	if r.trace && !r.deferTrace {
		tw, err = store.NewTraceWriter(r.cfg.Store.DataDir, r.id, false)
		if err != nil {
			return nil, ds, err
		}
		defer tw.Close()
	}
	r.pending = nil

	observer := func(p opt.Progress) bool {
		switch {
		case tw != nil:
			if err := tw.Write(store.EntryFromProgress(p, false)); err != nil {
				slog.Warn("Failed to write trace entry", "error", err)
			}
		case r.trace:
			r.pending = append(r.pending, store.EntryFromProgress(p, false))
		}
		return ctx.Err() == nil
	}

	minimizer, err := fit.NewMinimizer(r.cfg.Fit.Minimizer(), ds, r.cfg.Fit.Order, observer)
	if err != nil {
		return nil, ds, err
	}

	start := time.Now()
	res, err := fit.Optimize(ds, r.cfg.Fit.Options(), minimizer)
	if err != nil {
		return nil, ds, err
	}
	if ctx.Err() != nil {
		slog.Warn("Fit interrupted, reporting best parameters so far", "iterations", res.Iterations)
	}
	slog.Info("Fit finished", "elapsed", time.Since(start), "cost", res.Cost)

	isotherms := fit.GroupByTemperature(ds)
	if r.format == "plain" {
		if err := report.WriteCoefficients(r.out, res.Params); err != nil {
			return nil, ds, err
		}
	} else {
		fmt.Fprint(r.out, report.Summary(res, isotherms))
	}

	if r.curves != "" {
		if err := writeCurves(r.curves, res, isotherms, r.points); err != nil {
			return nil, ds, err
		}
		fmt.Fprintf(r.out, "Wrote curves to %s\n", r.curves)
	}

	return res, ds, nil
}

// flushTrace appends the entries held back by deferTrace to the stored trace.
func (r *fitRun) flushTrace() error {
	if len(r.pending) == 0 {
		return nil
	}

	tw, err := store.NewTraceWriter(r.cfg.Store.DataDir, r.id, true)
	if err != nil {
		return err
	}
	for _, entry := range r.pending {
		if err := tw.Write(entry); err != nil {
			tw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}

	r.pending = nil
	return nil
}

func writeCurves(path string, res *fit.OptimizationResult, isotherms []fit.Isotherm, points int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create curves file: %w", err)
	}
	defer f.Close()

	temps := make([]float64, len(isotherms))
	for i, iso := range isotherms {
		temps[i] = iso.T
	}
	if err := report.WriteCurvesCSV(f, res.Params, res.Order, temps, points); err != nil {
		return fmt.Errorf("failed to write curves: %w", err)
	}
	return f.Close()
}

func runFit(cmd *cobra.Command, args []string) error {
	c := *cfg
	if err := fitOpts.apply(cmd, &c); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	save := fitOpts.save || fitOpts.trace
	run := &fitRun{
		cfg:      &c,
		dataPath: os.ExpandEnv(fitOpts.data),
		trace:    fitOpts.trace,
		curves:   fitOpts.curves,
		points:   fitOpts.points,
		format:   fitOpts.format,
		out:      cmd.OutOrStdout(),
	}
	if save {
		run.id = uuid.New().String()
	}

	res, ds, err := run.execute(ctx)
	if err != nil {
		return err
	}

	if !save {
		return nil
	}
	return saveFit(cmd.OutOrStdout(), &c, run.id, run.dataPath, res, ds.Len(), 0)
}

// signalContext is cancelled on Ctrl-C; the optimizer then stops at the next
// iteration and the best parameters so far are reported.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

// saveFit stores a result; priorIterations carries the budget already spent
// by earlier runs of a refined fit.
func saveFit(out io.Writer, c *config.Config, id, dataPath string, res *fit.OptimizationResult, samples, priorIterations int) error {
	st, err := store.NewFSStore(c.Store.DataDir)
	if err != nil {
		return err
	}

	record := store.NewFitRecord(id, res, samples, store.FitConfig{
		DataPath:      dataPath,
		MaxIterations: c.Fit.MaxIterations,
		Tolerance:     c.Fit.Tolerance,
		Method:        c.Fit.Method,
	})
	record.Iterations += priorIterations
	if err := st.SaveFit(record); err != nil {
		return fmt.Errorf("failed to save fit: %w", err)
	}

	fmt.Fprintf(out, "Saved fit %s\n", id)
	return nil
}
