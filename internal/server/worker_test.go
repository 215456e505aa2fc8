package server

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/store"
)

func TestRunJob_Success(t *testing.T) {
	jm := NewJobManager()
	config := JobConfig{
		Objective:    "paraboloid",
		Dim:          2,
		Start:        []float64{4, 5},
		LearningRate: 0.1,
		Steps:        100,
		Mode:         "fixed",
		Strategy:     "NORMAL",
	}

	job := jm.CreateJob(config)

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Fatalf("Job should be completed, got %s (%s)", updated.State, updated.Error)
	}
	if updated.InitialValue != -18 {
		t.Errorf("InitialValue should be f(4,5) = -18, got %v", updated.InitialValue)
	}
	if math.Abs(updated.Point[0]-1) > 1e-6 || math.Abs(updated.Point[1]-2) > 1e-6 {
		t.Errorf("Expected final point near (1,2), got %v", updated.Point)
	}
	if updated.Value > 0 || updated.Value < -1e-9 {
		t.Errorf("Expected final value near 0, got %v", updated.Value)
	}
	if updated.Step != 100 {
		t.Errorf("Expected 100 steps, got %d", updated.Step)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_DynamicCountsTransitions(t *testing.T) {
	jm := NewJobManager()
	// Flat objective: every fifth step stalls into BOLD
	job := jm.CreateJob(JobConfig{
		Objective:    "sphere",
		Dim:          1,
		Start:        []float64{0},
		LearningRate: 0.1,
		Steps:        11,
		Mode:         "dynamic",
		Strategy:     "NORMAL",
	})

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	// Switches at steps 5 (to BOLD), 6 (back to NORMAL) and 10 (to BOLD)
	if updated.Transitions != 3 {
		t.Errorf("Expected 3 transitions, got %d", updated.Transitions)
	}
	if updated.Strategy != ascent.Bold {
		t.Errorf("Expected to finish in BOLD, got %s", updated.Strategy)
	}
}

func TestRunJob_PersistsRun(t *testing.T) {
	runStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Objective:    "paraboloid",
		Dim:          2,
		Start:        []float64{4, 5},
		LearningRate: 0.1,
		Steps:        20,
		Mode:         "dynamic",
		Strategy:     "CAUTIOUS",
	})

	if err := runJob(context.Background(), jm, runStore, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	record, err := runStore.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("Run should be persisted: %v", err)
	}
	if record.Objective != "paraboloid" || record.Mode != "dynamic" || record.Strategy != ascent.Cautious {
		t.Errorf("Unexpected record: %+v", record)
	}
	if record.InitialValue != -18 {
		t.Errorf("Expected initial value -18, got %v", record.InitialValue)
	}
	if record.FinalValue <= record.InitialValue {
		t.Errorf("Expected improvement, got %v -> %v", record.InitialValue, record.FinalValue)
	}
}

func TestRunJob_InvalidObjective(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Objective:    "nonexistent",
		Dim:          2,
		LearningRate: 0.1,
		Steps:        10,
		Mode:         "fixed",
	})

	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Error("runJob should fail with unknown objective")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestFinite(t *testing.T) {
	tests := []struct {
		value float64
		point []float64
		want  bool
	}{
		{-1.5, []float64{1, 2}, true},
		{0, nil, true},
		{math.Inf(-1), []float64{1, 2}, false},
		{math.NaN(), nil, false},
		{1, []float64{1, math.Inf(1)}, false},
		{1, []float64{math.NaN()}, false},
	}

	for _, tt := range tests {
		if got := finite(tt.value, tt.point); got != tt.want {
			t.Errorf("finite(%v, %v) = %v, want %v", tt.value, tt.point, got, tt.want)
		}
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Objective:    "sphere",
		Dim:          200,
		LearningRate: 0.01,
		Steps:        1000000, // Long-running job
		Mode:         "dynamic",
		Strategy:     "NORMAL",
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- runJob(ctx, jm, nil, job.ID)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("runJob should return context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runJob did not stop after cancellation")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
	if updated.Step >= 1000000 {
		t.Error("Cancelled job should not have finished its budget")
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "missing"); err == nil {
		t.Error("runJob should fail for unknown job")
	}
}

func TestRunJob_BroadcastsCompletion(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{
		Objective:    "paraboloid",
		Dim:          2,
		LearningRate: 0.1,
		Steps:        5,
		Mode:         "fixed",
	})

	ch := jm.broadcaster.Subscribe(job.ID)
	defer jm.broadcaster.Unsubscribe(job.ID, ch)

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	var last ProgressEvent
	for {
		select {
		case ev := <-ch:
			last = ev
			if ev.State.Terminal() {
				if ev.State != StateCompleted {
					t.Errorf("Expected completed event, got %s", ev.State)
				}
				if ev.Step != 5 {
					t.Errorf("Expected completion at step 5, got %d", ev.Step)
				}
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("No completion event, last was %+v", last)
		}
	}
}
