package ascent

import "math"

// DefaultStep is the finite-difference step used when the caller does not supply one.
const DefaultStep = 1e-5

// EstimateGradient approximates the gradient of f at point with central differences:
//
//	g[i] = (f(x + h·e_i) - f(x - h·e_i)) / 2h
//
// It evaluates f exactly 2·len(point) times on a private copy of point, restoring
// each coordinate before perturbing the next one. An empty point or a step that is
// not a positive finite number fails with ErrInvalidArgument before f is called.
func EstimateGradient(f Objective, point []float64, h float64) ([]float64, error) {
	if len(point) == 0 {
		return nil, invalid("point", "cannot be empty")
	}
	if !(h > 0) || math.IsInf(h, 1) {
		return nil, invalid("h", "must be a positive finite number")
	}

	gradient := make([]float64, len(point))
	perturbed := append([]float64(nil), point...)

	for i, original := range point {
		perturbed[i] = original + h
		plus, err := f.Evaluate(perturbed)
		if err != nil {
			return nil, err
		}

		perturbed[i] = original - h
		minus, err := f.Evaluate(perturbed)
		if err != nil {
			return nil, err
		}

		gradient[i] = (plus - minus) / (2 * h)
		perturbed[i] = original
	}

	return gradient, nil
}

// Gradient is EstimateGradient with DefaultStep.
func Gradient(f Objective, point []float64) ([]float64, error) {
	return EstimateGradient(f, point, DefaultStep)
}
