// Package config loads the JSON run configuration shared by the CLI commands.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/objective"
)

// Config is the top-level configuration file.
type Config struct {
	Run        RunConfig        `json:"run"`
	Policy     PolicyConfig     `json:"policy"`
	SeedSearch SeedSearchConfig `json:"seedSearch"`
	Batch      BatchConfig      `json:"batch"`
	Store      StoreConfig      `json:"store"`
}

// RunConfig describes a single optimization run.
type RunConfig struct {
	Objective    string    `json:"objective"`
	Dim          int       `json:"dim"`
	Start        []float64 `json:"start,omitempty"` // defaults to the origin
	LearningRate float64   `json:"learningRate"`
	Steps        int       `json:"steps"`
	Mode         string    `json:"mode"`     // fixed, dynamic
	Strategy     string    `json:"strategy"` // NORMAL, CAUTIOUS, BOLD
}

// PolicyConfig holds the strategy-switching thresholds of dynamic runs.
type PolicyConfig struct {
	StallThreshold    float64 `json:"stallThreshold"`
	RecoveryThreshold float64 `json:"recoveryThreshold"`
	StallEvery        int     `json:"stallEvery"`
	PhaseLength       int     `json:"phaseLength"`
}

// SeedSearchConfig configures the optional global search that picks the start point.
type SeedSearchConfig struct {
	Method     string  `json:"method"` // none, mayfly
	Iterations int     `json:"iterations"`
	Population int     `json:"population"`
	Seed       int64   `json:"seed"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
}

// BatchConfig configures multi-start runs.
type BatchConfig struct {
	Starts  int     `json:"starts"`
	Workers int     `json:"workers"` // 0 = number of CPUs
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Seed    int64   `json:"seed"`
}

// StoreConfig selects the run-history backend.
type StoreConfig struct {
	Backend string `json:"backend"` // fs, sqlite
	DataDir string `json:"dataDir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	p := ascent.DefaultPolicy()
	return &Config{
		Run: RunConfig{
			Objective:    "paraboloid",
			Dim:          2,
			LearningRate: 0.1,
			Steps:        100,
			Mode:         "dynamic",
			Strategy:     "NORMAL",
		},
		Policy: PolicyConfig{
			StallThreshold:    p.StallThreshold,
			RecoveryThreshold: p.RecoveryThreshold,
			StallEvery:        p.StallEvery,
			PhaseLength:       p.PhaseLength,
		},
		SeedSearch: SeedSearchConfig{
			Method:     "none",
			Iterations: 200,
			Population: 30,
			Seed:       1,
			Lower:      -10,
			Upper:      10,
		},
		Batch: BatchConfig{
			Starts: 50,
			Lower:  -10,
			Upper:  10,
			Seed:   42,
		},
		Store: StoreConfig{
			Backend: "fs",
			DataDir: "./data",
		},
	}
}

// Load reads a configuration file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as indented JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration and returns a *ValidationError naming the
// first offending field.
func (c *Config) Validate() error {
	spec, err := objective.Lookup(c.Run.Objective)
	if err != nil {
		return &ValidationError{Field: "run.objective", Reason: err.Error()}
	}
	if err := spec.Check(c.Run.Dim); err != nil {
		return &ValidationError{Field: "run.dim", Reason: err.Error()}
	}
	if c.Run.Start != nil && len(c.Run.Start) != c.Run.Dim {
		return &ValidationError{Field: "run.start", Reason: fmt.Sprintf("has %d coordinates, dim is %d", len(c.Run.Start), c.Run.Dim)}
	}
	if !(c.Run.LearningRate > 0) || math.IsInf(c.Run.LearningRate, 1) {
		return &ValidationError{Field: "run.learningRate", Reason: "must be positive"}
	}
	if c.Run.Steps < 0 {
		return &ValidationError{Field: "run.steps", Reason: "must be non-negative"}
	}
	if _, err := c.Mode(); err != nil {
		return &ValidationError{Field: "run.mode", Reason: err.Error()}
	}
	if _, err := c.Strategy(); err != nil {
		return &ValidationError{Field: "run.strategy", Reason: err.Error()}
	}
	if err := c.AscentPolicy().Validate(); err != nil {
		return &ValidationError{Field: "policy", Reason: err.Error()}
	}

	switch c.SeedSearch.Method {
	case "", "none":
	case "mayfly":
		if c.SeedSearch.Iterations <= 0 {
			return &ValidationError{Field: "seedSearch.iterations", Reason: "must be positive"}
		}
		// mayfly needs a population of at least 20
		if c.SeedSearch.Population < 20 {
			return &ValidationError{Field: "seedSearch.population", Reason: "must be at least 20"}
		}
		if !(c.SeedSearch.Lower < c.SeedSearch.Upper) {
			return &ValidationError{Field: "seedSearch.upper", Reason: "must exceed lower"}
		}
	default:
		return &ValidationError{Field: "seedSearch.method", Reason: fmt.Sprintf("unknown method %q (must be 'none' or 'mayfly')", c.SeedSearch.Method)}
	}

	if c.Batch.Starts <= 0 {
		return &ValidationError{Field: "batch.starts", Reason: "must be positive"}
	}
	if c.Batch.Workers < 0 {
		return &ValidationError{Field: "batch.workers", Reason: "cannot be negative"}
	}
	if !(c.Batch.Lower < c.Batch.Upper) {
		return &ValidationError{Field: "batch.upper", Reason: "must exceed lower"}
	}

	switch c.Store.Backend {
	case "fs", "sqlite":
	default:
		return &ValidationError{Field: "store.backend", Reason: fmt.Sprintf("unknown backend %q (must be 'fs' or 'sqlite')", c.Store.Backend)}
	}
	if c.Store.DataDir == "" {
		return &ValidationError{Field: "store.dataDir", Reason: "cannot be empty"}
	}

	return nil
}

// Mode parses run.mode.
func (c *Config) Mode() (ascent.Mode, error) {
	return ascent.ParseMode(c.Run.Mode)
}

// Strategy parses run.strategy.
func (c *Config) Strategy() (ascent.Strategy, error) {
	return ascent.ParseStrategy(c.Run.Strategy)
}

// AscentPolicy converts the policy section for the dynamic driver.
func (c *Config) AscentPolicy() ascent.Policy {
	return ascent.Policy{
		StallThreshold:    c.Policy.StallThreshold,
		RecoveryThreshold: c.Policy.RecoveryThreshold,
		StallEvery:        c.Policy.StallEvery,
		PhaseLength:       c.Policy.PhaseLength,
	}
}

// StartPoint returns run.start, or the origin of the configured dimension.
func (c *Config) StartPoint() []float64 {
	if c.Run.Start != nil {
		return append([]float64{}, c.Run.Start...)
	}
	return make([]float64, c.Run.Dim)
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
