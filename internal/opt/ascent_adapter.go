package opt

import (
	"log/slog"

	"github.com/cwbudde/gradascent/internal/ascent"
)

// AscentAdapter runs finite-difference gradient ascent on the negated cost so it
// can stand in wherever an Optimizer is expected.
type AscentAdapter struct {
	LearningRate float64
	Steps        int
	Mode         ascent.Mode
	Strategy     ascent.Strategy
	// Start is the initial point; the centre of the bounds when nil.
	Start []float64
}

// NewAscent creates a gradient-ascent optimizer starting from the box centre.
func NewAscent(learningRate float64, steps int, mode ascent.Mode) *AscentAdapter {
	return &AscentAdapter{
		LearningRate: learningRate,
		Steps:        steps,
		Mode:         mode,
		Strategy:     ascent.Normal,
	}
}

// Run minimizes eval by ascending -eval. The final point is projected into the
// bounds; if the ascent fails the start point is returned.
func (a *AscentAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	start := a.Start
	if len(start) != dim {
		start = center(lower, upper, dim)
	}

	reward := ascent.Func(func(x []float64) float64 { return -eval(x) })

	var (
		final []float64
		err   error
	)
	switch a.Mode {
	case ascent.Dynamic:
		final, err = ascent.OptimizeDynamic(reward, start, a.LearningRate, a.Steps, a.Strategy, -eval(start))
	default:
		final, err = ascent.OptimizeFixed(reward, start, a.LearningRate, a.Steps)
	}
	if err != nil {
		slog.Warn("Gradient ascent failed, keeping start point", "error", err, "dim", dim)
		final = append([]float64{}, start...)
	}

	clamp(final, lower, upper)
	return final, eval(final)
}

// Hybrid runs a global optimizer and polishes its best point with gradient ascent.
// A nil Local polishes with NewAscent(0.1, 100, ascent.Fixed).
type Hybrid struct {
	Global Optimizer
	Local  *AscentAdapter
}

// Run implements Optimizer. The better of the global and polished results wins.
func (h *Hybrid) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	globalBest, globalCost := h.Global.Run(eval, lower, upper, dim)

	local := *NewAscent(0.1, 100, ascent.Fixed)
	if h.Local != nil {
		local = *h.Local
	}
	local.Start = globalBest
	localBest, localCost := local.Run(eval, lower, upper, dim)

	slog.Debug("Hybrid optimization complete", "global_cost", globalCost, "local_cost", localCost)

	if localCost <= globalCost {
		return localBest, localCost
	}
	return globalBest, globalCost
}

// SeedSearch uses a Mayfly population search to pick a starting point for
// ascent on f inside [lower, upper]. The first objective error, if any, is
// returned instead of a point.
func SeedSearch(f ascent.Objective, lower, upper []float64, iters, popSize int, seed int64) ([]float64, error) {
	var firstErr error
	cost := func(x []float64) float64 {
		v, err := f.Evaluate(x)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return 0
		}
		return -v
	}

	best, bestCost := NewMayfly(iters, popSize, seed).Run(cost, lower, upper, len(lower))
	if firstErr != nil {
		return nil, firstErr
	}

	slog.Info("Seed search complete", "seed_point", best, "seed_value", -bestCost, "iters", iters, "pop", popSize)
	return best, nil
}
