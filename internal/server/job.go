package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/objective"
	"github.com/cwbudde/gradascent/internal/store"
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

// Terminal reports whether the job can no longer change state.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig describes one optimization run submitted over HTTP.
type JobConfig struct {
	Objective    string    `json:"objective"`
	Dim          int       `json:"dim"`
	Start        []float64 `json:"start,omitempty"` // defaults to the origin
	LearningRate float64   `json:"learningRate"`
	Steps        int       `json:"steps"`
	Mode         string    `json:"mode"`               // fixed, dynamic
	Strategy     string    `json:"strategy,omitempty"` // initial strategy of dynamic runs
}

const (
	defaultLearningRate = 0.1
	defaultSteps        = 100
)

// decodeJobConfig reads a job request body. Keys missing from the body take the
// CLI defaults; an explicit learningRate or steps of 0 is kept for Validate.
func decodeJobConfig(r io.Reader) (JobConfig, error) {
	c := JobConfig{LearningRate: defaultLearningRate, Steps: defaultSteps}
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return JobConfig{}, err
	}
	c.applyDefaults()
	return c, nil
}

// applyDefaults derives the dimension and fills in empty mode and strategy.
func (c *JobConfig) applyDefaults() {
	if c.Dim <= 0 {
		if c.Start != nil {
			c.Dim = len(c.Start)
		} else if spec, err := objective.Lookup(c.Objective); err == nil && spec.Dim > 0 {
			c.Dim = spec.Dim
		} else {
			c.Dim = 2
		}
	}
	if c.Mode == "" {
		c.Mode = ascent.Dynamic.String()
	}
	if c.Strategy == "" {
		c.Strategy = ascent.Normal.String()
	}
}

// Validate checks the configuration without evaluating anything.
func (c JobConfig) Validate() error {
	if c.Objective == "" {
		return fmt.Errorf("objective is required")
	}
	spec, err := objective.Lookup(c.Objective)
	if err != nil {
		return err
	}
	if err := spec.Check(c.Dim); err != nil {
		return err
	}
	if c.Start != nil && len(c.Start) != c.Dim {
		return fmt.Errorf("start has %d coordinates, dim is %d", len(c.Start), c.Dim)
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 1) {
		return fmt.Errorf("learningRate must be positive")
	}
	if c.Steps < 0 {
		return fmt.Errorf("steps must be non-negative")
	}
	if _, err := ascent.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := ascent.ParseStrategy(c.Strategy); err != nil {
		return err
	}
	return nil
}

// startPoint returns the configured start or the origin.
func (c JobConfig) startPoint() []float64 {
	if c.Start != nil {
		return append([]float64{}, c.Start...)
	}
	return make([]float64, c.Dim)
}

// Job represents an optimization job
type Job struct {
	ID           string          `json:"id"`
	State        JobState        `json:"state"`
	Config       JobConfig       `json:"config"`
	Point        []float64       `json:"point,omitempty"`
	Value        float64         `json:"value"`
	InitialValue float64         `json:"initialValue"`
	Step         int             `json:"step"`
	Strategy     ascent.Strategy `json:"strategy"`
	Transitions  int             `json:"transitions"`
	StartTime    time.Time       `json:"startTime"`
	EndTime      *time.Time      `json:"endTime,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	c.Point = append([]float64(nil), j.Point...)
	if j.Config.Start != nil {
		c.Config.Start = append([]float64{}, j.Config.Start...)
	}
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return &c
}

// Elapsed is the run time so far, or the total once the job has ended.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        store.NewRunID(),
		State:     StatePending,
		Config:    config,
		Strategy:  ascent.Normal,
		StartTime: time.Now(),
	}
	if s, err := ascent.ParseStrategy(config.Strategy); err == nil {
		job.Strategy = s
	}

	jm.jobs[job.ID] = job
	return job.clone()
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
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

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}

// setCancel registers the function that stops a job's worker.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// clearCancel forgets the cancel function once the worker has returned.
func (jm *JobManager) clearCancel(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	delete(jm.cancels, id)
}

// CancelJob asks the worker of a pending or running job to stop. The job moves
// to the cancelled state once the worker notices, between two chunks of steps.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s already %s", id, job.State)
	}

	cancel, ok := jm.cancels[id]
	if !ok {
		return fmt.Errorf("job %s has no active worker", id)
	}
	cancel()
	return nil
}
