package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/rkfit/internal/fit"
	"github.com/cwbudde/rkfit/internal/opt"
	"github.com/cwbudde/rkfit/internal/store"
)

// withRefineSetup stores an order-1 record with zero parameters and the
// given cost, plus a one-entry trace, and points the global config at it.
func withRefineSetup(t *testing.T, cost float64) (*store.FSStore, *bytes.Buffer) {
	t.Helper()

	c := testConfig(t)
	st, err := store.NewFSStore(c.Store.DataDir)
	require.NoError(t, err)

	require.NoError(t, st.SaveFit(&store.FitRecord{
		ID:          "fit-r",
		Params:      make([]float64, fit.ParamCount(1)),
		Cost:        cost,
		InitialCost: cost,
		Iterations:  3,
		Timestamp:   time.Now(),
		Config: store.FitConfig{
			DataPath:      writeDataFile(t),
			Order:         1,
			MaxIterations: 200,
			Tolerance:     c.Fit.Tolerance,
			Method:        fit.MethodLM,
		},
	}))

	tw, err := store.NewTraceWriter(c.Store.DataDir, "fit-r", false)
	require.NoError(t, err)
	require.NoError(t, tw.Write(store.EntryFromProgress(opt.Progress{Iteration: 1, Cost: cost}, false)))
	require.NoError(t, tw.Close())

	prevCfg, prevTrace := cfg, refineOpts.trace
	cfg = c
	refineOpts.trace = true

	var out bytes.Buffer
	refineCmd.SetOut(&out)
	refineCmd.SetContext(context.Background())
	t.Cleanup(func() {
		cfg, refineOpts.trace = prevCfg, prevTrace
		refineCmd.SetOut(nil)
		refineCmd.SetContext(nil)
	})

	return st, &out
}

func readTrace(t *testing.T, st *store.FSStore, id string) []store.TraceEntry {
	t.Helper()

	tr, err := store.NewTraceReader(st.BaseDir(), id)
	require.NoError(t, err)
	defer tr.Close()
	entries, err := tr.ReadAll()
	require.NoError(t, err)
	return entries
}

func TestRunRefineImproves(t *testing.T) {
	st, out := withRefineSetup(t, 1e30)

	require.NoError(t, runRefine(refineCmd, []string{"fit-r"}))
	assert.Contains(t, out.String(), "Saved fit fit-r")

	record, err := st.LoadFit("fit-r")
	require.NoError(t, err)
	assert.Less(t, record.Cost, 1e-6)
	assert.Greater(t, record.Iterations, 3)

	entries := readTrace(t, st, "fit-r")
	require.Greater(t, len(entries), 1, "new iterations are appended")
	assert.Equal(t, 1e30, entries[0].Cost)
	assert.LessOrEqual(t, len(entries)-1, record.Iterations-3)
}

func TestRunRefineWorseLeavesTraceUnchanged(t *testing.T) {
	st, out := withRefineSetup(t, 0)

	require.NoError(t, runRefine(refineCmd, []string{"fit-r"}))
	assert.Contains(t, out.String(), "record unchanged")

	record, err := st.LoadFit("fit-r")
	require.NoError(t, err)
	assert.Equal(t, 0.0, record.Cost)
	assert.Equal(t, 3, record.Iterations)

	entries := readTrace(t, st, "fit-r")
	assert.Len(t, entries, 1)
}
