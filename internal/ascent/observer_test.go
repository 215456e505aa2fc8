package ascent

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogObserver_WritesTransitions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	obs := LogObserver{Logger: logger, Attrs: []any{"run_id", "abc"}}
	flat := Func(func(x []float64) float64 { return 0 })

	if _, err := OptimizeDynamic(flat, []float64{1}, 0.1, 7, Normal, 0, WithObserver(obs)); err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 info records (steps are debug), got %d: %s", len(lines), buf.String())
	}

	var record map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("Invalid JSON log line: %v", err)
	}
	if record["msg"] != "Switching strategy" || record["from"] != "NORMAL" || record["to"] != "BOLD" {
		t.Errorf("Unexpected record: %v", record)
	}
	if record["run_id"] != "abc" {
		t.Errorf("Expected extra attrs to be logged, got %v", record)
	}
}

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}

	if _, err := OptimizeFixed(Func(sumSquares), []float64{1, 1}, 0.01, 3, WithObserver(MultiObserver{a, b})); err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}

	if len(a.Steps()) != 4 || len(b.Steps()) != 4 {
		t.Errorf("Expected both observers to see 4 events, got %d and %d", len(a.Steps()), len(b.Steps()))
	}
}
