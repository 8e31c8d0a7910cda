package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/rkfit/internal/dataio"
	"github.com/cwbudde/rkfit/internal/fit"
	"github.com/cwbudde/rkfit/internal/opt"
	"github.com/cwbudde/rkfit/internal/store"
)

// progressInterval throttles SSE progress events.
var progressInterval = 500 * time.Millisecond

// runner holds what a job needs besides its own config.
type runner struct {
	jm       *JobManager
	store    store.Store // nil disables persistence and refinement
	traceDir string      // empty disables traces
	defaults fit.MinimizerConfig
	csv      dataio.CSVOptions
	dataRoot string // confines DataPath; empty rejects file jobs
}

// runJob executes a fit job. Cancelling ctx stops the optimizer at the next
// iteration boundary; the best parameters so far are kept on the job.
func (r *runner) runJob(ctx context.Context, jobID string) error {
	job, exists := r.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	cfg := job.Config
	// Live subscribers drain the final event before their channels close.
	defer r.jm.broadcaster.CleanupJob(jobID)

	if err := r.jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "data", cfg.DataPath, "order", *cfg.Order, "method", cfg.Method)

	if cfg.DataPath != "" {
		path, err := resolveDataPath(r.dataRoot, cfg.DataPath)
		if err != nil {
			markJobFailed(r.jm, jobID, err)
			return err
		}
		cfg.DataPath = path
	}

	ds, err := r.loadDataset(cfg)
	if err != nil {
		markJobFailed(r.jm, jobID, err)
		return err
	}

	initial := cfg.Initial
	if cfg.RefineFrom != "" {
		if initial, err = r.refineStart(cfg); err != nil {
			markJobFailed(r.jm, jobID, err)
			return err
		}
	}

	temps := make([]float64, 0)
	for _, iso := range fit.GroupByTemperature(ds) {
		temps = append(temps, iso.T)
	}
	r.jm.UpdateJob(jobID, func(j *Job) {
		j.Samples = ds.Len()
		j.Temperatures = temps
	})

	var trace *store.TraceWriter
	if r.traceDir != "" {
		trace, err = store.NewTraceWriter(r.traceDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
			trace = nil
		} else {
			defer trace.Close()
		}
	}

	observer := func(p opt.Progress) bool {
		r.jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = p.Iteration
			j.Cost = p.Cost
			j.Lambda = p.Lambda
			j.Params = p.Params
		})
		if trace != nil {
			if err := trace.Write(store.EntryFromProgress(p, false)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
		return ctx.Err() == nil
	}

	mcfg := r.defaults
	mcfg.Method = cfg.Method
	minimizer, err := fit.NewMinimizer(mcfg, ds, *cfg.Order, observer)
	if err != nil {
		markJobFailed(r.jm, jobID, err)
		return err
	}

	select {
	case <-ctx.Done():
		markJobCancelled(r.jm, jobID)
		return ctx.Err()
	default:
	}

	progressDone := make(chan struct{})
	monitorExited := make(chan struct{})
	go func() {
		defer close(monitorExited)
		monitorProgress(ctx, r.jm, jobID, progressDone)
	}()

	start := time.Now()
	result, err := fit.Optimize(ds, fit.Options{
		Order:         *cfg.Order,
		MaxIterations: *cfg.MaxIterations,
		Tolerance:     *cfg.Tolerance,
		Initial:       initial,
	}, minimizer)
	close(progressDone)
	<-monitorExited

	if err != nil {
		markJobFailed(r.jm, jobID, err)
		return err
	}

	endTime := time.Now()
	state := StateCompleted
	if ctx.Err() != nil {
		state = StateCancelled
	}
	r.jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Params = result.Params
		j.Cost = result.Cost
		j.InitialCost = result.InitialCost
		j.RMS = result.RMS
		j.Iterations = result.Iterations
		j.EndTime = &endTime
	})

	slog.Info("Job finished",
		"job_id", jobID,
		"state", state,
		"elapsed", time.Since(start),
		"initial_cost", result.InitialCost,
		"cost", result.Cost,
		"iterations", result.Iterations,
	)

	if state == StateCompleted && r.store != nil {
		record := store.NewFitRecord(jobID, result, ds.Len(), store.FitConfig{
			DataPath:      cfg.DataPath,
			MaxIterations: *cfg.MaxIterations,
			Tolerance:     *cfg.Tolerance,
			Method:        cfg.Method,
		})
		if err := r.store.SaveFit(record); err != nil {
			slog.Error("Failed to persist fit", "job_id", jobID, "error", err)
		}
	}

	r.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      state,
		Iterations: result.Iterations,
		Cost:       result.Cost,
		Timestamp:  time.Now(),
	})

	if state == StateCancelled {
		return ctx.Err()
	}
	return nil
}

func (r *runner) loadDataset(cfg JobConfig) (fit.Dataset, error) {
	if cfg.Data != nil {
		return fit.NewDataset(cfg.Data.X, cfg.Data.T, cfg.Data.G)
	}

	opts := r.csv
	if cfg.CSV != nil {
		opts = *cfg.CSV
	}
	return dataio.LoadCSV(cfg.DataPath, opts)
}

// refineStart returns the parameters of the stored fit a job continues from.
func (r *runner) refineStart(cfg JobConfig) ([]float64, error) {
	if r.store == nil {
		return nil, errors.New("refinement needs a result store")
	}

	record, err := r.store.LoadFit(cfg.RefineFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to load fit %s: %w", cfg.RefineFrom, err)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := record.IsCompatible(store.FitConfig{DataPath: cfg.DataPath, Order: *cfg.Order}); err != nil {
		return nil, err
	}
	return record.Params, nil
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:      jobID,
				State:      job.State,
				Iterations: job.Iterations,
				Cost:       job.Cost,
				Lambda:     job.Lambda,
				Timestamp:  time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
