package ascent

import "fmt"

// ErrInvalidArgument is returned when a call is rejected before any work is done:
// empty points, non-positive step sizes or learning rates, negative step budgets.
// Use errors.Is(err, ErrInvalidArgument) to check for this error.
var ErrInvalidArgument = &ArgumentError{}

// ErrDimensionMismatch is returned when a gradient and the point it was computed
// at disagree in length. A correct estimator never produces it.
var ErrDimensionMismatch = &DimensionError{}

// ArgumentError describes a rejected input.
type ArgumentError struct {
	Arg    string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Arg == "" {
		return "invalid argument"
	}
	return "invalid argument: " + e.Arg + " " + e.Reason
}

func (e *ArgumentError) Is(target error) bool {
	_, ok := target.(*ArgumentError)
	return ok
}

// DimensionError reports a gradient whose length differs from the point's.
type DimensionError struct {
	Point    int
	Gradient int
}

func (e *DimensionError) Error() string {
	if e.Point == 0 && e.Gradient == 0 {
		return "dimension mismatch"
	}
	return fmt.Sprintf("dimension mismatch: gradient has %d components, point has %d", e.Gradient, e.Point)
}

func (e *DimensionError) Is(target error) bool {
	_, ok := target.(*DimensionError)
	return ok
}

func invalid(arg, reason string) error {
	return &ArgumentError{Arg: arg, Reason: reason}
}
