package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rkfit/internal/store"
)

var refineOpts fitFlags

var refineCmd = &cobra.Command{
	Use:   "refine <fit-id>",
	Short: "Continue a stored fit",
	Long: `Restarts the optimizer from the parameters of a stored fit, using the
same data file and model order. The stored record is replaced when the new
cost is not worse; with --trace the new iterations are appended to the
stored trace only in that case.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefine,
}

func init() {
	refineOpts.register(refineCmd, false)
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	c := *cfg
	if err := refineOpts.apply(cmd, &c); err != nil {
		return err
	}

	st, err := store.NewFSStore(c.Store.DataDir)
	if err != nil {
		return err
	}
	record, err := st.LoadFit(args[0])
	if err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("stored fit is invalid: %w", err)
	}

	dataPath := record.Config.DataPath
	if refineOpts.data != "" {
		dataPath = os.ExpandEnv(refineOpts.data)
	}
	if err := record.IsCompatible(store.FitConfig{DataPath: dataPath, Order: record.Config.Order}); err != nil {
		return err
	}

	c.Fit.Order = record.Config.Order
	c.Fit.Initial = record.Params
	if !cmd.Flags().Changed("method") {
		c.Fit.Method = record.Config.Method
	}

	run := &fitRun{
		cfg:        &c,
		dataPath:   dataPath,
		id:         record.ID,
		trace:      refineOpts.trace,
		deferTrace: true,
		curves:     refineOpts.curves,
		points:     refineOpts.points,
		format:     refineOpts.format,
		out:        cmd.OutOrStdout(),
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	res, ds, err := run.execute(ctx)
	if err != nil {
		return err
	}

	if res.Cost > record.Cost {
		fmt.Fprintf(cmd.OutOrStdout(), "Refinement did not improve fit %s (%g > %g), record unchanged\n", record.ID, res.Cost, record.Cost)
		return nil
	}
	if err := saveFit(cmd.OutOrStdout(), &c, record.ID, dataPath, res, ds.Len(), record.Iterations); err != nil {
		return err
	}
	return run.flushTrace()
}
