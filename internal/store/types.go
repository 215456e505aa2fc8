package store

import (
	"math"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/google/uuid"
)

// RunRecord is the persisted outcome of one optimization run.
type RunRecord struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Objective is the registry name of the optimized function
	Objective string `json:"objective"`

	// Mode is "fixed" or "dynamic"
	Mode string `json:"mode"`

	// Strategy is the initial strategy of a dynamic run
	Strategy ascent.Strategy `json:"strategy"`

	LearningRate float64 `json:"learningRate"`
	Steps        int     `json:"steps"`

	InitialPoint []float64 `json:"initialPoint"`
	FinalPoint   []float64 `json:"finalPoint"`
	InitialValue float64   `json:"initialValue"`
	FinalValue   float64   `json:"finalValue"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	// Elapsed is the wall-clock duration of the run
	Elapsed time.Duration `json:"elapsed"`
}

// RunInfo contains metadata about a run without its points.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Objective  string    `json:"objective"`
	Mode       string    `json:"mode"`
	Dim        int       `json:"dim"`
	Steps      int       `json:"steps"`
	FinalValue float64   `json:"finalValue"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		Objective:  r.Objective,
		Mode:       r.Mode,
		Dim:        len(r.FinalPoint),
		Steps:      r.Steps,
		FinalValue: r.FinalValue,
		Timestamp:  r.Timestamp,
	}
}

// Improvement is the gain in objective value over the run.
func (r *RunRecord) Improvement() float64 {
	return r.FinalValue - r.InitialValue
}

// Validate checks if the record has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Objective == "" {
		return &ValidationError{Field: "Objective", Reason: "cannot be empty"}
	}
	if _, err := ascent.ParseMode(r.Mode); err != nil || r.Mode == "" {
		return &ValidationError{Field: "Mode", Reason: "must be fixed or dynamic"}
	}
	if !r.Strategy.Valid() {
		return &ValidationError{Field: "Strategy", Reason: "unknown strategy"}
	}
	if !(r.LearningRate > 0) {
		return &ValidationError{Field: "LearningRate", Reason: "must be positive"}
	}
	if r.Steps < 0 {
		return &ValidationError{Field: "Steps", Reason: "cannot be negative"}
	}
	if len(r.InitialPoint) == 0 {
		return &ValidationError{Field: "InitialPoint", Reason: "cannot be empty"}
	}
	if len(r.FinalPoint) != len(r.InitialPoint) {
		return &ValidationError{Field: "FinalPoint", Reason: "dimension must match InitialPoint"}
	}
	if math.IsNaN(r.FinalValue) || math.IsInf(r.FinalValue, 0) {
		return &ValidationError{Field: "FinalValue", Reason: "must be finite"}
	}
	if math.IsNaN(r.InitialValue) || math.IsInf(r.InitialValue, 0) {
		return &ValidationError{Field: "InitialValue", Reason: "must be finite"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run-record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
