package opt

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: cost function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// center returns the midpoint of the box [lower, upper].
func center(lower, upper []float64, dim int) []float64 {
	c := make([]float64, dim)
	for i := range c {
		c[i] = (lower[i] + upper[i]) / 2
	}
	return c
}

// clamp projects x into the box [lower, upper] in place.
func clamp(x, lower, upper []float64) {
	for i := range x {
		if x[i] < lower[i] {
			x[i] = lower[i]
		}
		if x[i] > upper[i] {
			x[i] = upper[i]
		}
	}
}
