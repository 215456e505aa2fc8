package ascent

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Mode selects how a Run chooses its effective learning rate.
type Mode int

const (
	// Fixed applies the base learning rate on every iteration.
	Fixed Mode = iota
	// Dynamic scales the base rate by the current Strategy and lets the Policy
	// switch strategies between iterations.
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case Fixed:
		return "fixed"
	case Dynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts "fixed" or "dynamic" to a Mode.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "fixed", "":
		return Fixed, nil
	case "dynamic":
		return Dynamic, nil
	default:
		return Fixed, invalid("mode", fmt.Sprintf("unknown name %q", name))
	}
}

// RunState is the state carried from one iteration to the next.
type RunState struct {
	Point     []float64
	Strategy  Strategy
	PrevValue float64
	Step      int
	Remaining int
}

// Run is one optimization run. It can be advanced all at once or in chunks, which
// lets callers interleave their own cancellation checks between iterations.
// A Run is not safe for concurrent use; independent runs share nothing.
type Run struct {
	f        Objective
	mode     Mode
	rate     float64
	cfg      settings
	observed bool

	state RunState
	value float64
	done  bool
	err   error
}

// NewFixedRun validates the inputs of a fixed-rate run. Nothing is evaluated yet.
func NewFixedRun(f Objective, initial []float64, learningRate float64, totalSteps int, opts ...Option) (*Run, error) {
	return newRun(f, Fixed, initial, learningRate, totalSteps, Normal, math.NaN(), opts)
}

// NewDynamicRun validates the inputs of a strategy-switching run. initialValue
// should be f(initial); it is only compared against the first evaluation, and
// step 0 never switches strategy, so it is not checked.
func NewDynamicRun(f Objective, initial []float64, learningRate float64, totalSteps int, initialStrategy Strategy, initialValue float64, opts ...Option) (*Run, error) {
	return newRun(f, Dynamic, initial, learningRate, totalSteps, initialStrategy, initialValue, opts)
}

func newRun(f Objective, mode Mode, initial []float64, learningRate float64, totalSteps int, strategy Strategy, initialValue float64, opts []Option) (*Run, error) {
	cfg := newSettings(opts)

	if f == nil {
		return nil, invalid("objective", "cannot be nil")
	}
	if !(learningRate > 0) || math.IsInf(learningRate, 1) {
		return nil, invalid("learning rate", "must be positive")
	}
	if totalSteps < 0 {
		return nil, invalid("total steps", "must be non-negative")
	}
	if len(initial) == 0 && totalSteps > 0 {
		return nil, invalid("initial point", "cannot be empty if steps > 0")
	}
	if !(cfg.h > 0) || math.IsInf(cfg.h, 1) {
		return nil, invalid("h", "must be a positive finite number")
	}
	if !strategy.Valid() {
		return nil, invalid("strategy", fmt.Sprintf("unknown value %d", int(strategy)))
	}
	if mode == Dynamic {
		if err := cfg.policy.Validate(); err != nil {
			return nil, err
		}
	}

	_, nop := cfg.observer.(nopObserver)

	r := &Run{
		f:        f,
		mode:     mode,
		rate:     learningRate,
		cfg:      cfg,
		observed: !nop,
		state: RunState{
			Point:     append([]float64{}, initial...),
			Strategy:  strategy,
			PrevValue: initialValue,
			Remaining: totalSteps,
		},
		value: math.NaN(),
	}

	// Nothing to optimize and nothing to evaluate.
	if len(initial) == 0 {
		r.done = true
	}

	return r, nil
}

// Advance performs up to n iterations and reports whether the run has finished.
// The terminating iteration (the evaluation after the last update) counts as one.
// After an error the run is stopped and every later call returns the same error.
func (r *Run) Advance(n int) (bool, error) {
	for i := 0; i < n && !r.done && r.err == nil; i++ {
		r.err = r.iterate()
	}
	return r.done, r.err
}

// Finish advances the run until it is done and returns the final point.
func (r *Run) Finish() ([]float64, error) {
	for !r.done && r.err == nil {
		r.err = r.iterate()
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.Point(), nil
}

// Point returns a copy of the current point.
func (r *Run) Point() []float64 {
	return append([]float64{}, r.state.Point...)
}

// State returns a copy of the current run state.
func (r *Run) State() RunState {
	s := r.state
	s.Point = r.Point()
	return s
}

// Value returns the objective value at the final point once it is known. Fixed
// runs only evaluate the final point when an observer is attached.
func (r *Run) Value() (float64, bool) {
	return r.value, r.done && !math.IsNaN(r.value)
}

// Done reports whether the step budget is exhausted.
func (r *Run) Done() bool { return r.done }

// Mode returns the run's operating mode.
func (r *Run) Mode() Mode { return r.mode }

func (r *Run) iterate() error {
	st := &r.state

	if r.mode == Fixed && st.Remaining <= 0 {
		r.done = true
		if !r.observed {
			return nil
		}
		value, err := r.f.Evaluate(st.Point)
		if err != nil {
			return err
		}
		r.finish(value)
		return nil
	}

	value, err := r.f.Evaluate(st.Point)
	if err != nil {
		return err
	}

	if st.Remaining <= 0 {
		r.done = true
		r.finish(value)
		return nil
	}

	grad, err := EstimateGradient(r.f, st.Point, r.cfg.h)
	if err != nil {
		return err
	}
	if len(grad) != len(st.Point) {
		return &DimensionError{Point: len(st.Point), Gradient: len(grad)}
	}

	rate := r.rate * st.Strategy.Multiplier()
	next := append([]float64{}, st.Point...)
	floats.AddScaled(next, rate, grad)

	if r.observed {
		r.cfg.observer.OnStep(StepEvent{
			Step:     st.Step,
			Point:    append([]float64{}, st.Point...),
			Value:    value,
			Gradient: grad,
			Strategy: st.Strategy,
			Rate:     rate,
		})
	}

	nextStrategy := st.Strategy
	if r.mode == Dynamic {
		improvement := value - st.PrevValue
		var reason string
		nextStrategy, reason = r.cfg.policy.Next(st.Strategy, st.Step, improvement)
		if nextStrategy != st.Strategy {
			r.cfg.observer.OnTransition(Transition{
				Step:        st.Step,
				From:        st.Strategy,
				To:          nextStrategy,
				Reason:      reason,
				Improvement: improvement,
			})
		}
	}

	*st = RunState{
		Point:     next,
		Strategy:  nextStrategy,
		PrevValue: value,
		Step:      st.Step + 1,
		Remaining: st.Remaining - 1,
	}
	return nil
}

func (r *Run) finish(value float64) {
	r.value = value
	r.cfg.observer.OnStep(StepEvent{
		Step:     r.state.Step,
		Point:    append([]float64{}, r.state.Point...),
		Value:    value,
		Strategy: r.state.Strategy,
		Rate:     r.rate * r.state.Strategy.Multiplier(),
		Final:    true,
	})
}

// OptimizeFixed runs exactly totalSteps iterations of x += learningRate·∇f(x)
// starting from a copy of initial, and returns the final point.
//
// It fails with ErrInvalidArgument when learningRate <= 0, totalSteps < 0, or
// initial is empty while totalSteps > 0. An empty initial point with zero steps
// returns an empty point. Objective errors are returned unmodified.
func OptimizeFixed(f Objective, initial []float64, learningRate float64, totalSteps int, opts ...Option) ([]float64, error) {
	run, err := NewFixedRun(f, initial, learningRate, totalSteps, opts...)
	if err != nil {
		return nil, err
	}
	return run.Finish()
}

// OptimizeDynamic runs totalSteps iterations whose effective learning rate is
// learningRate times the multiplier of the current Strategy. After every step the
// Policy may switch strategy for the next iteration based on the improvement
// f(x_k) - f(x_{k-1}); initialValue plays the role of f(x_{-1}).
func OptimizeDynamic(f Objective, initial []float64, learningRate float64, totalSteps int, initialStrategy Strategy, initialValue float64, opts ...Option) ([]float64, error) {
	run, err := NewDynamicRun(f, initial, learningRate, totalSteps, initialStrategy, initialValue, opts...)
	if err != nil {
		return nil, err
	}
	return run.Finish()
}
