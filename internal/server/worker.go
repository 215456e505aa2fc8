package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/objective"
	"github.com/cwbudde/gradascent/internal/store"
)

// chunkSteps is how many iterations run between two cancellation checks.
const chunkSteps = 64

// progressInterval throttles per-step broadcasts to ~10 per second.
const progressInterval = 100 * time.Millisecond

// runJob executes an optimization job in the background.
// If runStore is not nil, the finished run is saved to it.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	cfg := job.Config
	slog.Info("Starting job", "job_id", jobID, "objective", cfg.Objective, "mode", cfg.Mode, "steps", cfg.Steps)

	spec, err := objective.Lookup(cfg.Objective)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	f, err := spec.Build(cfg.Dim)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	mode, err := ascent.ParseMode(cfg.Mode)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	strategy, err := ascent.ParseStrategy(cfg.Strategy)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	start := cfg.startPoint()
	initialValue, err := f.Evaluate(start)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to evaluate start point: %w", err))
		return err
	}

	jm.UpdateJob(jobID, func(j *Job) {
		j.InitialValue = initialValue
		j.Value = initialValue
		j.Point = append([]float64{}, start...)
	})

	progress := newJobObserver(jm, jobID)
	opts := []ascent.Option{
		ascent.WithObserver(ascent.MultiObserver{
			progress,
			ascent.LogObserver{Attrs: []any{"job_id", jobID}},
		}),
	}

	var run *ascent.Run
	if mode == ascent.Dynamic {
		run, err = ascent.NewDynamicRun(f, start, cfg.LearningRate, cfg.Steps, strategy, initialValue, opts...)
	} else {
		run, err = ascent.NewFixedRun(f, start, cfg.LearningRate, cfg.Steps, opts...)
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	began := time.Now()
	for {
		select {
		case <-ctx.Done():
			markJobCancelled(jm, jobID)
			return ctx.Err()
		default:
		}

		done, err := run.Advance(chunkSteps)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		if done {
			break
		}
	}
	elapsed := time.Since(began)

	final := run.Point()
	value, ok := run.Value()
	if !ok {
		// Observed runs always evaluate the final point
		value = initialValue
	}
	if !finite(value, final) {
		err := fmt.Errorf("run diverged: final value %v", value)
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Point = final
		j.Value = value
		j.Step = run.State().Step
		j.Strategy = run.State().Strategy
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"initial_value", initialValue,
		"final_value", value,
		"transitions", progress.transitions(),
	)

	if runStore != nil {
		record := &store.RunRecord{
			RunID:        jobID,
			Objective:    cfg.Objective,
			Mode:         mode.String(),
			Strategy:     strategy,
			LearningRate: cfg.LearningRate,
			Steps:        cfg.Steps,
			InitialPoint: start,
			FinalPoint:   final,
			InitialValue: initialValue,
			FinalValue:   value,
			Timestamp:    endTime,
			Elapsed:      elapsed,
		}
		// The job result stays available in memory even if persisting fails
		if err := runStore.SaveRun(record); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		}
	}

	completed, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(progressFromJob(completed))

	return nil
}

// jobObserver mirrors run progress into the job record and broadcasts it.
type jobObserver struct {
	jm    *JobManager
	jobID string

	mu            sync.Mutex
	lastBroadcast time.Time
	switches      int
}

func newJobObserver(jm *JobManager, jobID string) *jobObserver {
	return &jobObserver{jm: jm, jobID: jobID}
}

func (o *jobObserver) OnStep(e ascent.StepEvent) {
	// Diverging runs are reported once they finish; JSON cannot carry Inf or NaN
	if !finite(e.Value, e.Point) {
		return
	}

	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Step = e.Step
		j.Point = e.Point
		j.Value = e.Value
		j.Strategy = e.Strategy
	})

	o.mu.Lock()
	now := time.Now()
	due := now.Sub(o.lastBroadcast) >= progressInterval
	if due {
		o.lastBroadcast = now
	}
	o.mu.Unlock()

	// The final step is announced by the completion event
	if !due || e.Final {
		return
	}

	o.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     o.jobID,
		State:     StateRunning,
		Step:      e.Step,
		Value:     e.Value,
		Strategy:  e.Strategy,
		Point:     e.Point,
		Timestamp: now,
	})
}

func (o *jobObserver) OnTransition(t ascent.Transition) {
	o.mu.Lock()
	o.switches++
	o.mu.Unlock()

	var value float64
	var point []float64
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Transitions++
		j.Strategy = t.To
		value = j.Value
		point = append([]float64{}, j.Point...)
	})

	event := ProgressEvent{
		JobID:     o.jobID,
		State:     StateRunning,
		Step:      t.Step,
		Value:     value,
		Strategy:  t.To,
		Point:     point,
		Timestamp: time.Now(),
	}
	if finite(t.Improvement, nil) {
		event.Transition = &t
	}

	// Strategy switches are never throttled
	o.jm.broadcaster.Broadcast(event)
}

func (o *jobObserver) transitions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.switches
}

func finite(value float64, point []float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	for _, x := range point {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressFromJob(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(progressFromJob(job))
	}
}
