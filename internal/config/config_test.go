package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/gradascent/internal/ascent"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should be valid, got %v", err)
	}
}

func TestDefault_PolicyMatchesAscent(t *testing.T) {
	if got, want := Default().AscentPolicy(), ascent.DefaultPolicy(); got != want {
		t.Errorf("AscentPolicy() = %+v, want %+v", got, want)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"run": {"objective": "sphere", "dim": 3, "start": [1, 2, 3], "steps": 25},
		"store": {"backend": "sqlite"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Run.Objective != "sphere" || cfg.Run.Dim != 3 || cfg.Run.Steps != 25 {
		t.Errorf("Run section not applied: %+v", cfg.Run)
	}
	if cfg.Run.LearningRate != 0.1 {
		t.Errorf("Expected default learning rate 0.1, got %g", cfg.Run.LearningRate)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DataDir != "./data" {
		t.Errorf("Store section wrong: %+v", cfg.Store)
	}
	if cfg.Batch.Starts != 50 {
		t.Errorf("Expected default batch starts 50, got %d", cfg.Batch.Starts)
	}

	start := cfg.StartPoint()
	start[0] = 99
	if cfg.Run.Start[0] != 1 {
		t.Error("StartPoint should return a copy")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	if _, err := Load(writeConfig(t, `{"run": `)); err == nil {
		t.Error("Expected error for malformed JSON")
	}

	_, err := Load(writeConfig(t, `{"run": {"mode": "sideways"}}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if verr.Field != "run.mode" {
		t.Errorf("Expected field run.mode, got %s", verr.Field)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown objective", func(c *Config) { c.Run.Objective = "himmelblau" }, "run.objective"},
		{"wrong dimension", func(c *Config) { c.Run.Dim = 3 }, "run.dim"},
		{"start length", func(c *Config) { c.Run.Start = []float64{1} }, "run.start"},
		{"zero rate", func(c *Config) { c.Run.LearningRate = 0 }, "run.learningRate"},
		{"negative steps", func(c *Config) { c.Run.Steps = -1 }, "run.steps"},
		{"bad strategy", func(c *Config) { c.Run.Strategy = "reckless" }, "run.strategy"},
		{"bad policy", func(c *Config) { c.Policy.PhaseLength = 0 }, "policy"},
		{"unknown seed search", func(c *Config) { c.SeedSearch.Method = "anneal" }, "seedSearch.method"},
		{"small population", func(c *Config) {
			c.SeedSearch.Method = "mayfly"
			c.SeedSearch.Population = 10
		}, "seedSearch.population"},
		{"empty seed box", func(c *Config) {
			c.SeedSearch.Method = "mayfly"
			c.SeedSearch.Lower = 1
			c.SeedSearch.Upper = 1
		}, "seedSearch.upper"},
		{"no batch starts", func(c *Config) { c.Batch.Starts = 0 }, "batch.starts"},
		{"negative workers", func(c *Config) { c.Batch.Workers = -2 }, "batch.workers"},
		{"inverted batch box", func(c *Config) { c.Batch.Lower = 5 }, "batch.upper"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"empty data dir", func(c *Config) { c.Store.DataDir = "" }, "store.dataDir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %s, got %s (%v)", tt.field, verr.Field, verr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")

	cfg := Default()
	cfg.Run.Mode = "fixed"
	cfg.SeedSearch.Method = "mayfly"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	mode, err := loaded.Mode()
	if err != nil || mode != ascent.Fixed {
		t.Errorf("Mode() = %v, %v; want fixed", mode, err)
	}
	if loaded.SeedSearch.Method != "mayfly" {
		t.Errorf("Expected seed search mayfly, got %s", loaded.SeedSearch.Method)
	}
}
