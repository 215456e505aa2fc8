package ascent

// Objective is a scalar function of several real variables.
//
// Evaluate must be free of side effects visible to the optimizer: the estimator
// calls it 2n times per gradient and the drivers once more per iteration.
// Errors returned by Evaluate are passed back to the caller unmodified.
type Objective interface {
	Evaluate(x []float64) (float64, error)
}

// Func adapts a plain function that cannot fail.
type Func func(x []float64) float64

// Evaluate implements Objective.
func (f Func) Evaluate(x []float64) (float64, error) {
	return f(x), nil
}

// ErrFunc adapts a function that reports domain errors, such as a point of the
// wrong dimension.
type ErrFunc func(x []float64) (float64, error)

// Evaluate implements Objective.
func (f ErrFunc) Evaluate(x []float64) (float64, error) {
	return f(x)
}
