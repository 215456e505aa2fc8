// Package multistart runs independent gradient-ascent runs from many starting
// points in parallel. Runs share nothing: each worker owns its point and state.
package multistart

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/sourcegraph/conc/pool"
)

// Config holds the settings shared by every run of a batch.
type Config struct {
	LearningRate float64
	Steps        int
	Mode         ascent.Mode
	Strategy     ascent.Strategy
	// Policy overrides the strategy-switching thresholds of dynamic runs;
	// the zero value keeps ascent.DefaultPolicy.
	Policy ascent.Policy
	// Workers bounds the number of concurrent runs; GOMAXPROCS when <= 0.
	Workers int
	// Observer, when set, builds a per-run observer.
	Observer func(index int) ascent.Observer
}

// Result is the outcome of one run.
type Result struct {
	Index   int           `json:"index"`
	Start   []float64     `json:"start"`
	Final   []float64     `json:"final,omitempty"`
	Value   float64       `json:"value"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
}

// Summary aggregates a batch.
type Summary struct {
	Runs      int
	Failed    int
	BestIndex int
	BestValue float64
	MeanValue float64
	Total     time.Duration
	AvgPerRun time.Duration
}

// RandomPoints draws n points of dimension dim uniformly from [lo, hi).
func RandomPoints(n, dim int, lo, hi float64, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	points := make([][]float64, n)
	for i := range points {
		p := make([]float64, dim)
		for j := range p {
			p[j] = lo + rng.Float64()*(hi-lo)
		}
		points[i] = p
	}
	return points
}

// Run optimizes f from every start point and returns results in input order.
// onDone, if not nil, is called once per finished run from the worker goroutine.
// Runs that have not started when ctx is cancelled fail with ctx.Err().
func Run(ctx context.Context, f ascent.Objective, starts [][]float64, cfg Config, onDone func(Result)) ([]Result, Summary, error) {
	if !(cfg.LearningRate > 0) {
		return nil, Summary{}, fmt.Errorf("learning rate must be positive: %w", ascent.ErrInvalidArgument)
	}
	if cfg.Steps < 0 {
		return nil, Summary{}, fmt.Errorf("steps must be non-negative: %w", ascent.ErrInvalidArgument)
	}
	if cfg.Policy != (ascent.Policy{}) {
		if err := cfg.Policy.Validate(); err != nil {
			return nil, Summary{}, fmt.Errorf("invalid policy: %w", err)
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(starts))
	start := time.Now()

	p := pool.New().WithMaxGoroutines(workers)
	for i, s := range starts {
		i, s := i, s
		p.Go(func() {
			res := runOne(ctx, f, i, s, cfg)
			results[i] = res
			if onDone != nil {
				onDone(res)
			}
		})
	}
	p.Wait()

	summary := summarize(results, time.Since(start))
	slog.Info("Batch complete",
		"runs", summary.Runs,
		"failed", summary.Failed,
		"best_index", summary.BestIndex,
		"best_value", summary.BestValue,
		"elapsed", summary.Total,
	)

	return results, summary, ctx.Err()
}

func runOne(ctx context.Context, f ascent.Objective, index int, start []float64, cfg Config) Result {
	res := Result{Index: index, Start: append([]float64{}, start...), Value: math.NaN()}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	var opts []ascent.Option
	if cfg.Observer != nil {
		opts = append(opts, ascent.WithObserver(cfg.Observer(index)))
	}
	if cfg.Policy != (ascent.Policy{}) {
		opts = append(opts, ascent.WithPolicy(cfg.Policy))
	}

	began := time.Now()
	var final []float64
	var err error
	switch cfg.Mode {
	case ascent.Dynamic:
		var initial float64
		initial, err = f.Evaluate(start)
		if err == nil {
			final, err = ascent.OptimizeDynamic(f, start, cfg.LearningRate, cfg.Steps, cfg.Strategy, initial, opts...)
		}
	default:
		final, err = ascent.OptimizeFixed(f, start, cfg.LearningRate, cfg.Steps, opts...)
	}
	if err == nil && len(final) > 0 {
		res.Value, err = f.Evaluate(final)
	}
	res.Elapsed = time.Since(began)

	if err != nil {
		slog.Debug("Run failed", "index", index, "error", err)
		res.Err = err
		return res
	}
	res.Final = final
	return res
}

func summarize(results []Result, total time.Duration) Summary {
	s := Summary{Runs: len(results), BestIndex: -1, BestValue: math.Inf(-1), Total: total}

	var sum float64
	var ok int
	for _, r := range results {
		if r.Err != nil || math.IsNaN(r.Value) {
			s.Failed++
			continue
		}
		ok++
		sum += r.Value
		if r.Value > s.BestValue {
			s.BestValue = r.Value
			s.BestIndex = r.Index
		}
	}

	if ok > 0 {
		s.MeanValue = sum / float64(ok)
	} else {
		s.MeanValue = math.NaN()
	}
	if len(results) > 0 {
		s.AvgPerRun = total / time.Duration(len(results))
	}
	return s
}
