package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/rkfit/internal/config"
	"github.com/cwbudde/rkfit/internal/dataio"
	"github.com/cwbudde/rkfit/internal/fit"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// InlineData carries samples in the request body instead of a CSV path.
type InlineData struct {
	X []float64 `json:"x"`
	T []float64 `json:"t"`
	G []float64 `json:"g"`
}

// JobConfig is the body of a fit request. Zero fields take the server defaults.
type JobConfig struct {
	DataPath      string             `json:"dataPath,omitempty"`
	Data          *InlineData        `json:"data,omitempty"`
	CSV           *dataio.CSVOptions `json:"csv,omitempty"`
	Order         *int               `json:"order,omitempty"`
	MaxIterations *int               `json:"maxIterations,omitempty"`
	Tolerance     *float64           `json:"tolerance,omitempty"`
	Method        string             `json:"method,omitempty"`
	Initial       []float64          `json:"initial,omitempty"`
	RefineFrom    string             `json:"refineFrom,omitempty"` // stored fit ID to start from
}

// applyDefaults fills unset fields from the server's fit settings.
func (c *JobConfig) applyDefaults(defaults config.FitConfig) {
	if c.Order == nil {
		order := defaults.Order
		c.Order = &order
	}
	if c.MaxIterations == nil {
		iters := defaults.MaxIterations
		c.MaxIterations = &iters
	}
	if c.Tolerance == nil {
		tol := defaults.Tolerance
		c.Tolerance = &tol
	}
	if c.Method == "" {
		c.Method = defaults.Method
	}
}

// Validate checks a config after defaults have been applied.
func (c *JobConfig) Validate() error {
	if c.DataPath == "" && c.Data == nil {
		return fmt.Errorf("either dataPath or data is required")
	}
	if c.DataPath != "" && c.Data != nil {
		return fmt.Errorf("dataPath and data are mutually exclusive")
	}
	if err := fit.ValidateOrder(*c.Order); err != nil {
		return err
	}
	if *c.MaxIterations < 0 {
		return fmt.Errorf("maxIterations cannot be negative")
	}
	if *c.Tolerance < 0 {
		return fmt.Errorf("tolerance cannot be negative")
	}
	if err := fit.ValidateMethod(c.Method); err != nil {
		return err
	}
	if c.Initial != nil && len(c.Initial) != fit.ParamCount(*c.Order) {
		return fmt.Errorf("initial has %d values, order %d needs %d", len(c.Initial), *c.Order, fit.ParamCount(*c.Order))
	}
	return nil
}

// Job represents a fit job
type Job struct {
	ID           string     `json:"id"`
	State        JobState   `json:"state"`
	Config       JobConfig  `json:"config"`
	Params       []float64  `json:"params,omitempty"`
	Cost         float64    `json:"cost"`
	InitialCost  float64    `json:"initialCost"`
	RMS          float64    `json:"rms"`
	Lambda       float64    `json:"lambda,omitempty"`
	Iterations   int        `json:"iterations"`
	Samples      int        `json:"samples"`
	Temperatures []float64  `json:"temperatures,omitempty"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Error        string     `json:"error,omitempty"`

	cancel context.CancelFunc
}

// snapshot copies the job so callers can read it without holding the lock.
func (j *Job) snapshot() Job {
	c := *j
	c.Params = append([]float64(nil), j.Params...)
	c.Temperatures = append([]float64(nil), j.Temperatures...)
	c.cancel = nil
	return c
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. cancel, if not nil, is what CancelJob
// calls; it is in place before the job becomes visible.
func (jm *JobManager) CreateJob(config JobConfig, cancel context.CancelFunc) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
		cancel:    cancel,
	}

	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob returns a copy of the job with the given ID
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns copies of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns copies of all jobs in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, job.snapshot())
		}
	}
	return running
}

// CancelJob stops a pending or running job. It reports false for unknown
// or finished jobs.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Finished() || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// CancelAll stops every unfinished job.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, job := range jm.jobs {
		if !job.State.Finished() && job.cancel != nil {
			job.cancel()
		}
	}
}
