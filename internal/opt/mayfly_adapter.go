package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
	"gonum.org/v1/gonum/floats"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// It is used as a global search that finds a good starting point for gradient ascent.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	config := mayfly.NewDefaultConfig()

	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// The library takes scalar bounds: search the smallest cube that covers the box,
	// then project the winner back into it.
	config.LowerBound = floats.Min(lower[:dim])
	config.UpperBound = floats.Max(upper[:dim])

	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly search failed, using box centre", "error", err, "dim", dim)
		c := center(lower, upper, dim)
		return c, eval(c)
	}

	best := append([]float64{}, result.GlobalBest.Position...)
	clamp(best, lower, upper)
	return best, eval(best)
}
