package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cwbudde/rkfit/internal/config"
	"github.com/cwbudde/rkfit/internal/report"
	"github.com/cwbudde/rkfit/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runner     *runner
	defaults   config.FitConfig
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server. st may be nil, in which case fits are
// neither persisted nor traced and refinement is unavailable.
func NewServer(cfg *config.Config, st *store.FSStore) *Server {
	jm := NewJobManager()
	r := &runner{
		jm:       jm,
		defaults: cfg.Fit.Minimizer(),
		csv:      cfg.Data,
		dataRoot: cfg.Server.DataRoot,
	}
	if st != nil {
		r.store = st
		r.traceDir = st.BaseDir()
	}

	return &Server{
		jobManager: jm,
		runner:     r,
		defaults:   cfg.Fit,
		addr:       cfg.Server.Addr,
	}
}

// Handler returns the routed API with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/fits", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/fits", s.handleListJobs)
	mux.HandleFunc("GET /api/v1/fits/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/v1/fits/{id}/status", s.handleGetJobStatus)
	mux.HandleFunc("GET /api/v1/fits/{id}/stream", s.handleJobStream)
	mux.HandleFunc("GET /api/v1/fits/{id}/curves", s.handleGetCurves)
	mux.HandleFunc("DELETE /api/v1/fits/{id}", s.handleCancelJob)

	mux.HandleFunc("GET /api/v1/results", s.handleListResults)
	mux.HandleFunc("GET /api/v1/results/{id}", s.handleGetResult)
	mux.HandleFunc("DELETE /api/v1/results/{id}", s.handleDeleteResult)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels unfinished jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.jobManager.CancelAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleCreateJob handles POST /api/v1/fits
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var cfg JobConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	cfg.applyDefaults(s.defaults)
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if cfg.DataPath != "" {
		path, err := resolveDataPath(s.runner.dataRoot, cfg.DataPath)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg.DataPath = path
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := s.jobManager.CreateJob(cfg, cancel)

	go func() {
		defer cancel()
		s.runner.runJob(ctx, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/fits
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJob handles GET /api/v1/fits/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(r.PathValue("id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetJobStatus handles GET /api/v1/fits/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(r.PathValue("id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	maxIterations := 0
	if job.Config.MaxIterations != nil {
		maxIterations = *job.Config.MaxIterations
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            job.ID,
		"state":         job.State,
		"cost":          job.Cost,
		"initialCost":   job.InitialCost,
		"rms":           job.RMS,
		"iterations":    job.Iterations,
		"maxIterations": maxIterations,
		"elapsed":       elapsed.Seconds(),
		"startTime":     job.StartTime,
		"endTime":       job.EndTime,
		"error":         job.Error,
	})
}

// handleGetCurves handles GET /api/v1/fits/{id}/curves?points=N&T=...
// It returns the fitted isotherms as CSV; T defaults to the measured
// temperatures.
func (s *Server) handleGetCurves(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(r.PathValue("id"))
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if len(job.Params) == 0 || job.Config.Order == nil {
		writeError(w, http.StatusNotFound, "no results yet")
		return
	}

	points := 101
	if v := r.URL.Query().Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > 10000 {
			writeError(w, http.StatusBadRequest, "points must be an integer in [2, 10000]")
			return
		}
		points = n
	}

	temps, err := parseTemperatures(r.URL.Query()["T"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(temps) == 0 {
		temps = job.Temperatures
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Cache-Control", "no-cache")
	if err := report.WriteCurvesCSV(w, job.Params, *job.Config.Order, temps, points); err != nil {
		slog.Error("Failed to write curves", "job_id", job.ID, "error", err)
	}
}

// handleCancelJob handles DELETE /api/v1/fits/{id}
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, exists := s.jobManager.GetJob(id); !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !s.jobManager.CancelJob(id) {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleListResults handles GET /api/v1/results
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.runner.store == nil {
		writeError(w, http.StatusNotImplemented, "no result store configured")
		return
	}
	infos, err := s.runner.store.ListFits()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetResult handles GET /api/v1/results/{id}
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.runner.store == nil {
		writeError(w, http.StatusNotImplemented, "no result store configured")
		return
	}
	record, err := s.runner.store.LoadFit(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteResult handles DELETE /api/v1/results/{id}
func (s *Server) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	if s.runner.store == nil {
		writeError(w, http.StatusNotImplemented, "no result store configured")
		return
	}
	err := s.runner.store.DeleteFit(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
