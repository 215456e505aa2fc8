package ascent

import (
	"log/slog"
	"sync"
)

// StepEvent describes one evaluated point of a run. Point and Gradient are copies
// owned by the receiver. The last event of a run has Final set and no gradient.
type StepEvent struct {
	Step     int       `json:"step"`
	Point    []float64 `json:"point"`
	Value    float64   `json:"value"`
	Gradient []float64 `json:"gradient,omitempty"`
	Strategy Strategy  `json:"strategy"`
	Rate     float64   `json:"rate"`
	Final    bool      `json:"final,omitempty"`
}

// Transition is emitted once each time the dynamic driver switches strategy.
// The new strategy takes effect on the following iteration.
type Transition struct {
	Step        int      `json:"step"`
	From        Strategy `json:"from"`
	To          Strategy `json:"to"`
	Reason      string   `json:"reason"`
	Improvement float64  `json:"improvement"`
}

// Observer receives progress from the drivers. Observers must not modify the
// optimizer's state; they only see copies.
type Observer interface {
	OnStep(StepEvent)
	OnTransition(Transition)
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnStep(e StepEvent) {
	for _, o := range m {
		o.OnStep(e)
	}
}

func (m MultiObserver) OnTransition(t Transition) {
	for _, o := range m {
		o.OnTransition(t)
	}
}

// LogObserver writes steps at debug level and strategy switches at info level.
type LogObserver struct {
	Logger *slog.Logger
	Attrs  []any
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogObserver) OnStep(e StepEvent) {
	args := append([]any{
		"step", e.Step,
		"point", e.Point,
		"value", e.Value,
		"strategy", e.Strategy.String(),
		"final", e.Final,
	}, l.Attrs...)
	l.logger().Debug("Ascent step", args...)
}

func (l LogObserver) OnTransition(t Transition) {
	args := append([]any{
		"step", t.Step,
		"from", t.From.String(),
		"to", t.To.String(),
		"reason", t.Reason,
		"improvement", t.Improvement,
	}, l.Attrs...)
	l.logger().Info("Switching strategy", args...)
}

// Recorder keeps every event it sees. It is safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	steps       []StepEvent
	transitions []Transition
}

func (r *Recorder) OnStep(e StepEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, e)
}

func (r *Recorder) OnTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

// Steps returns a copy of the recorded step events.
func (r *Recorder) Steps() []StepEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StepEvent(nil), r.steps...)
}

// Transitions returns a copy of the recorded strategy switches.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

type nopObserver struct{}

func (nopObserver) OnStep(StepEvent)        {}
func (nopObserver) OnTransition(Transition) {}

// Option customizes a driver call.
type Option func(*settings)

type settings struct {
	observer Observer
	policy   Policy
	h        float64
}

func newSettings(opts []Option) settings {
	s := settings{
		observer: nopObserver{},
		policy:   DefaultPolicy(),
		h:        DefaultStep,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithObserver attaches an observer to the run.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithPolicy replaces the strategy-switching thresholds of a dynamic run.
func WithPolicy(p Policy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

// WithStep overrides the finite-difference step used for gradient estimates.
func WithStep(h float64) Option {
	return func(s *settings) {
		s.h = h
	}
}
