package ascent

import (
	"fmt"
	"math"
	"strings"
)

// Strategy selects the learning-rate multiplier used by the dynamic driver.
type Strategy int

const (
	Normal Strategy = iota
	Cautious
	Bold
)

// Multiplier returns the factor applied to the base learning rate.
func (s Strategy) Multiplier() float64 {
	switch s {
	case Cautious:
		return 0.5
	case Bold:
		return 1.5
	default:
		return 1.0
	}
}

// Valid reports whether s is one of the defined strategies.
func (s Strategy) Valid() bool {
	return s == Normal || s == Cautious || s == Bold
}

func (s Strategy) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Cautious:
		return "CAUTIOUS"
	case Bold:
		return "BOLD"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts a strategy name (case-insensitive) to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NORMAL", "":
		return Normal, nil
	case "CAUTIOUS":
		return Cautious, nil
	case "BOLD":
		return Bold, nil
	default:
		return Normal, invalid("strategy", fmt.Sprintf("unknown name %q", name))
	}
}

// MarshalText encodes the strategy by name so it reads well in JSON.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, invalid("strategy", fmt.Sprintf("unknown value %d", int(s)))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Transition reasons reported to observers.
const (
	ReasonSlowProgress = "slow progress"
	ReasonOvershot     = "overshot"
	ReasonDuration     = "duration"
	ReasonRecovered    = "duration or good progress"
)

// Policy is the state machine that switches strategies between iterations.
// It has no terminal state; the zero value is not useful, use DefaultPolicy.
type Policy struct {
	// StallThreshold is the |improvement| below which a Normal run counts as stalled.
	StallThreshold float64
	// RecoveryThreshold is the improvement that ends a Cautious phase early.
	RecoveryThreshold float64
	// StallEvery is how often (in steps) Normal checks for a stall.
	StallEvery int
	// PhaseLength bounds Bold and Cautious phases (in steps).
	PhaseLength int
}

// DefaultPolicy returns the thresholds the dynamic driver uses unless overridden.
func DefaultPolicy() Policy {
	return Policy{
		StallThreshold:    1e-3,
		RecoveryThreshold: 1e-2,
		StallEvery:        5,
		PhaseLength:       3,
	}
}

// Validate checks that the step periods are usable.
func (p Policy) Validate() error {
	if p.StallEvery <= 0 {
		return invalid("policy.StallEvery", "must be positive")
	}
	if p.PhaseLength <= 0 {
		return invalid("policy.PhaseLength", "must be positive")
	}
	if p.StallThreshold < 0 || math.IsNaN(p.StallThreshold) {
		return invalid("policy.StallThreshold", "cannot be negative")
	}
	if math.IsNaN(p.RecoveryThreshold) {
		return invalid("policy.RecoveryThreshold", "cannot be NaN")
	}
	return nil
}

// Next returns the strategy for the iteration after step, given the change in
// objective value observed at step. Step 0 never switches. The returned reason is
// empty when the strategy is unchanged.
func (p Policy) Next(current Strategy, step int, improvement float64) (Strategy, string) {
	if step <= 0 {
		return current, ""
	}

	switch current {
	case Normal:
		if step%p.StallEvery == 0 && math.Abs(improvement) < p.StallThreshold {
			return Bold, ReasonSlowProgress
		}
	case Bold:
		// Overshoot wins over the phase-length check.
		if improvement < 0 {
			return Cautious, ReasonOvershot
		}
		if step%p.PhaseLength == 0 {
			return Normal, ReasonDuration
		}
	case Cautious:
		if step%p.PhaseLength == 0 || improvement > p.RecoveryThreshold {
			return Normal, ReasonRecovered
		}
	}

	return current, ""
}
