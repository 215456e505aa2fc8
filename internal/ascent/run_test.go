package ascent

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// paraboloid has its maximum at (1, 2).
func paraboloid(x []float64) float64 {
	dx, dy := x[0]-1, x[1]-2
	return -(dx*dx + dy*dy)
}

func TestOptimizeFixed_ConcreteScenario(t *testing.T) {
	rec := &Recorder{}
	start := []float64{4, 5}

	final, err := OptimizeFixed(Func(paraboloid), start, 0.1, 5, WithObserver(rec))
	if err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}

	steps := rec.Steps()
	if len(steps) != 6 {
		t.Fatalf("Expected 5 step events plus a final one, got %d", len(steps))
	}

	if !floats.EqualApprox(steps[0].Gradient, []float64{-6, -6}, 1e-6) {
		t.Errorf("Expected first gradient (-6, -6), got %v", steps[0].Gradient)
	}
	if !floats.EqualApprox(steps[1].Point, []float64{3.4, 4.4}, 1e-6) {
		t.Errorf("Expected point (3.4, 4.4) after one step, got %v", steps[1].Point)
	}

	// Each step shrinks the offset from the optimum by a factor 1 - 2*lr.
	want := []float64{1 + 3*math.Pow(0.8, 5), 2 + 3*math.Pow(0.8, 5)}
	if !floats.EqualApprox(final, want, 1e-6) {
		t.Errorf("Expected final point %v, got %v", want, final)
	}

	optimum := []float64{1, 2}
	prev := math.Inf(1)
	for _, e := range steps {
		d := floats.Distance(e.Point, optimum, 2)
		if d >= prev {
			t.Errorf("Step %d: distance %f did not decrease from %f", e.Step, d, prev)
		}
		prev = d
	}

	if !steps[len(steps)-1].Final {
		t.Error("Last event should be marked final")
	}
	if !floats.Equal(start, []float64{4, 5}) {
		t.Errorf("Initial point was modified: %v", start)
	}
}

func TestOptimizeFixed_ConvergesAsStepsIncrease(t *testing.T) {
	optimum := []float64{1, 2}
	prev := math.Inf(1)

	for _, steps := range []int{0, 1, 2, 5, 10, 50, 200} {
		final, err := OptimizeFixed(Func(paraboloid), []float64{-7, 9}, 0.05, steps)
		if err != nil {
			t.Fatalf("OptimizeFixed(%d steps) failed: %v", steps, err)
		}

		d := floats.Distance(final, optimum, 2)
		if d > prev {
			t.Errorf("%d steps: distance %f larger than with fewer steps (%f)", steps, d, prev)
		}
		prev = d
	}

	if prev > 1e-6 {
		t.Errorf("Expected convergence to the optimum, distance %g", prev)
	}
}

func TestOptimizeFixed_ZeroStepsIsNoOp(t *testing.T) {
	obj := &countingObjective{f: paraboloid}
	start := []float64{4, 5}

	final, err := OptimizeFixed(obj, start, 0.1, 0)
	if err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}

	if !floats.Equal(final, start) {
		t.Errorf("Expected %v, got %v", start, final)
	}
	if obj.calls != 0 {
		t.Errorf("Expected no evaluations, got %d", obj.calls)
	}

	// The result must not alias the caller's slice.
	final[0] = 99
	if start[0] != 4 {
		t.Error("Result aliases the initial point")
	}
}

func TestOptimizeFixed_EmptyPointZeroSteps(t *testing.T) {
	obj := &countingObjective{f: sumSquares}

	final, err := OptimizeFixed(obj, nil, 0.1, 0)
	if err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}
	if final == nil || len(final) != 0 {
		t.Errorf("Expected an empty point, got %v", final)
	}
	if obj.calls != 0 {
		t.Errorf("Expected no evaluations, got %d", obj.calls)
	}
}

func TestOptimizeFixed_EvaluationCount(t *testing.T) {
	obj := &countingObjective{f: paraboloid}

	if _, err := OptimizeFixed(obj, []float64{0, 0}, 0.1, 7); err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}

	// One progress evaluation plus 2n for the gradient, per step.
	if want := 7 * (1 + 2*2); obj.calls != want {
		t.Errorf("Expected %d evaluations, got %d", want, obj.calls)
	}
}

func TestOptimizeFixed_InvalidArguments(t *testing.T) {
	tests := []struct {
		name  string
		point []float64
		lr    float64
		steps int
		opts  []Option
	}{
		{"zero learning rate", []float64{1, 1}, 0, 5, nil},
		{"negative learning rate", []float64{1, 1}, -0.1, 5, nil},
		{"NaN learning rate", []float64{1, 1}, math.NaN(), 5, nil},
		{"negative steps", []float64{1, 1}, 0.1, -1, nil},
		{"empty point with steps", []float64{}, 0.1, 3, nil},
		{"non-positive h", []float64{1, 1}, 0.1, 3, []Option{WithStep(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &countingObjective{f: paraboloid}

			_, err := OptimizeFixed(obj, tt.point, tt.lr, tt.steps, tt.opts...)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
			if obj.calls != 0 {
				t.Errorf("No work should be done, got %d evaluations", obj.calls)
			}
		})
	}
}

func TestOptimizeFixed_ObjectiveErrorPropagates(t *testing.T) {
	errDomain := errors.New("function expects 2 variables (x, y)")
	f := ErrFunc(func(x []float64) (float64, error) {
		if len(x) != 2 {
			return 0, errDomain
		}
		return paraboloid(x), nil
	})

	_, err := OptimizeFixed(f, []float64{1, 2, 3}, 0.1, 3)
	if err != errDomain {
		t.Errorf("Expected objective error unmodified, got %v", err)
	}
}

func TestOptimizeDynamic_MatchesFixedWithoutSwitches(t *testing.T) {
	f := Func(paraboloid)
	start := []float64{4, 5}

	fixed, err := OptimizeFixed(f, start, 0.1, 5)
	if err != nil {
		t.Fatalf("OptimizeFixed failed: %v", err)
	}

	rec := &Recorder{}
	dynamic, err := OptimizeDynamic(f, start, 0.1, 5, Normal, paraboloid(start), WithObserver(rec))
	if err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	if !floats.EqualApprox(fixed, dynamic, 1e-12) {
		t.Errorf("Expected %v, got %v", fixed, dynamic)
	}
	if n := len(rec.Transitions()); n != 0 {
		t.Errorf("Expected no strategy switches in 5 steps, got %d", n)
	}
}

func TestOptimizeDynamic_EvaluationCount(t *testing.T) {
	obj := &countingObjective{f: paraboloid}
	start := []float64{4, 5}

	if _, err := OptimizeDynamic(obj, start, 0.1, 5, Normal, paraboloid(start)); err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	// The base case evaluates the final point once more.
	if want := 5*(1+2*2) + 1; obj.calls != want {
		t.Errorf("Expected %d evaluations, got %d", want, obj.calls)
	}
}

func TestOptimizeDynamic_StalledRunAlternatesBoldAndNormal(t *testing.T) {
	flat := Func(func(x []float64) float64 { return 3 })
	rec := &Recorder{}

	if _, err := OptimizeDynamic(flat, []float64{0, 0}, 0.1, 13, Normal, 3, WithObserver(rec)); err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	want := []Transition{
		{Step: 5, From: Normal, To: Bold, Reason: ReasonSlowProgress},
		{Step: 6, From: Bold, To: Normal, Reason: ReasonDuration},
		{Step: 10, From: Normal, To: Bold, Reason: ReasonSlowProgress},
		{Step: 12, From: Bold, To: Normal, Reason: ReasonDuration},
	}

	got := rec.Transitions()
	if len(got) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].Step != want[i].Step || got[i].From != want[i].From || got[i].To != want[i].To || got[i].Reason != want[i].Reason {
			t.Errorf("Transition %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	// A switch only affects the following iteration.
	steps := rec.Steps()
	if steps[5].Strategy != Normal || steps[6].Strategy != Bold || steps[7].Strategy != Normal {
		t.Errorf("Unexpected strategies at steps 5-7: %s %s %s", steps[5].Strategy, steps[6].Strategy, steps[7].Strategy)
	}
	if math.Abs(steps[6].Rate-0.15) > 1e-12 {
		t.Errorf("Expected bold rate 0.15, got %f", steps[6].Rate)
	}
}

func TestOptimizeDynamic_OvershootPullsBack(t *testing.T) {
	f := Func(func(x []float64) float64 { return -x[0] * x[0] })
	rec := &Recorder{}

	final, err := OptimizeDynamic(f, []float64{1}, 1, 4, Bold, -1, WithObserver(rec))
	if err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	// x: 1 -> -2 (bold) -> 4 (bold, overshoot detected) -> 0 (cautious) -> 0
	wantPoints := []float64{1, -2, 4, 0, 0}
	steps := rec.Steps()
	if len(steps) != len(wantPoints) {
		t.Fatalf("Expected %d events, got %d", len(wantPoints), len(steps))
	}
	for i, want := range wantPoints {
		if math.Abs(steps[i].Point[0]-want) > 1e-6 {
			t.Errorf("Step %d: expected x=%f, got %f", i, want, steps[i].Point[0])
		}
	}

	transitions := rec.Transitions()
	if len(transitions) != 2 {
		t.Fatalf("Expected 2 transitions, got %+v", transitions)
	}
	if transitions[0].Step != 1 || transitions[0].To != Cautious || transitions[0].Reason != ReasonOvershot {
		t.Errorf("Expected BOLD -> CAUTIOUS at step 1, got %+v", transitions[0])
	}
	if transitions[1].Step != 3 || transitions[1].To != Normal {
		t.Errorf("Expected CAUTIOUS -> NORMAL at step 3, got %+v", transitions[1])
	}

	if math.Abs(final[0]) > 1e-6 {
		t.Errorf("Expected final x near 0, got %f", final[0])
	}
}

func TestOptimizeDynamic_InvalidArguments(t *testing.T) {
	tests := []struct {
		name     string
		point    []float64
		lr       float64
		steps    int
		strategy Strategy
		opts     []Option
	}{
		{"zero learning rate", []float64{1, 1}, 0, 5, Normal, nil},
		{"negative steps", []float64{1, 1}, 0.1, -2, Normal, nil},
		{"empty point with steps", nil, 0.1, 1, Normal, nil},
		{"unknown strategy", []float64{1, 1}, 0.1, 1, Strategy(9), nil},
		{"bad policy", []float64{1, 1}, 0.1, 1, Normal, []Option{WithPolicy(Policy{})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &countingObjective{f: paraboloid}

			_, err := OptimizeDynamic(obj, tt.point, tt.lr, tt.steps, tt.strategy, 0, tt.opts...)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
			if obj.calls != 0 {
				t.Errorf("No work should be done, got %d evaluations", obj.calls)
			}
		})
	}
}

func TestOptimizeDynamic_EmptyPointZeroSteps(t *testing.T) {
	obj := &countingObjective{f: sumSquares}

	final, err := OptimizeDynamic(obj, []float64{}, 0.1, 0, Normal, 0)
	if err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}
	if len(final) != 0 || obj.calls != 0 {
		t.Errorf("Expected empty point and no evaluations, got %v after %d calls", final, obj.calls)
	}
}

func TestRun_AdvanceInChunksMatchesFinish(t *testing.T) {
	f := Func(paraboloid)
	start := []float64{-3, 8}

	whole, err := OptimizeDynamic(f, start, 0.3, 40, Normal, paraboloid(start))
	if err != nil {
		t.Fatalf("OptimizeDynamic failed: %v", err)
	}

	run, err := NewDynamicRun(f, start, 0.3, 40, Normal, paraboloid(start))
	if err != nil {
		t.Fatalf("NewDynamicRun failed: %v", err)
	}

	chunks := 0
	for {
		done, err := run.Advance(7)
		if err != nil {
			t.Fatalf("Advance failed: %v", err)
		}
		chunks++
		if done {
			break
		}
	}

	if chunks != 6 { // 41 iterations including the terminating one
		t.Errorf("Expected 6 chunks, got %d", chunks)
	}
	if !floats.Equal(run.Point(), whole) {
		t.Errorf("Expected %v, got %v", whole, run.Point())
	}
	if value, ok := run.Value(); !ok || value != paraboloid(whole) {
		t.Errorf("Expected final value %f, got %f (known=%v)", paraboloid(whole), value, ok)
	}
	if st := run.State(); st.Step != 40 || st.Remaining != 0 {
		t.Errorf("Unexpected final state %+v", st)
	}
}

func TestRun_StopsAfterError(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	f := ErrFunc(func(x []float64) (float64, error) {
		calls++
		if calls > 3 {
			return 0, errBoom
		}
		return 0, nil
	})

	run, err := NewFixedRun(f, []float64{1}, 0.1, 10)
	if err != nil {
		t.Fatalf("NewFixedRun failed: %v", err)
	}

	if _, err := run.Advance(10); err != errBoom {
		t.Fatalf("Expected errBoom, got %v", err)
	}
	before := calls
	if _, err := run.Finish(); err != errBoom {
		t.Errorf("Expected errBoom again, got %v", err)
	}
	if calls != before {
		t.Error("Run continued evaluating after an error")
	}
}

func TestDimensionError(t *testing.T) {
	err := error(&DimensionError{Point: 2, Gradient: 3})

	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("DimensionError should match ErrDimensionMismatch")
	}
	if errors.Is(err, ErrInvalidArgument) {
		t.Error("DimensionError should not match ErrInvalidArgument")
	}
	if err.Error() != "dimension mismatch: gradient has 3 components, point has 2" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
