package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/config"
	"github.com/cwbudde/gradascent/internal/multistart"
	"github.com/cwbudde/gradascent/internal/objective"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const exampleSteps = 5

var (
	batchStarts  int
	batchWorkers int
	batchLower   float64
	batchUpper   float64
	batchSeed    int64
	batchDetails bool
	batchExample bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run gradient ascent from many random start points",
	Long: `Run independent gradient-ascent runs from random start points in parallel
and report the best result and timing. Afterwards a short example run from
(4, 5) prints every step.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&runObjective, "objective", "paraboloid", "Objective to maximize (see 'objectives')")
	batchCmd.Flags().IntVar(&runDim, "dim", 2, "Dimension of the search space")
	batchCmd.Flags().Float64Var(&runLR, "lr", 0.1, "Base learning rate")
	batchCmd.Flags().IntVar(&runSteps, "steps", 100, "Number of ascent iterations per run")
	batchCmd.Flags().StringVar(&runMode, "mode", "dynamic", "Step mode: fixed or dynamic")
	batchCmd.Flags().StringVar(&runStrategy, "strategy", "NORMAL", "Initial strategy of dynamic runs")
	batchCmd.Flags().IntVar(&batchStarts, "starts", 50, "Number of random start points")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent runs (0 = number of CPUs)")
	batchCmd.Flags().Float64Var(&batchLower, "lower", -10, "Lower bound of the start points")
	batchCmd.Flags().Float64Var(&batchUpper, "upper", 10, "Upper bound of the start points")
	batchCmd.Flags().Int64Var(&batchSeed, "seed", 42, "Random seed for the start points")
	batchCmd.Flags().BoolVar(&batchDetails, "details", false, "Print the start and final point of every run")
	batchCmd.Flags().BoolVar(&batchExample, "example", true, "Print the short example run afterwards")
}

// applyBatchFlags copies explicitly set flags over the loaded configuration.
func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) {
	applyAscentFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("starts") {
		cfg.Batch.Starts = batchStarts
	}
	if flags.Changed("workers") {
		cfg.Batch.Workers = batchWorkers
	}
	if flags.Changed("lower") {
		cfg.Batch.Lower = batchLower
	}
	if flags.Changed("upper") {
		cfg.Batch.Upper = batchUpper
	}
	if flags.Changed("seed") {
		cfg.Batch.Seed = batchSeed
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBatchFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	spec, err := objective.Lookup(cfg.Run.Objective)
	if err != nil {
		return err
	}
	f, err := spec.Build(cfg.Run.Dim)
	if err != nil {
		return err
	}
	mode, _ := cfg.Mode()
	strategy, _ := cfg.Strategy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	rule := strings.Repeat("=", 82)

	fmt.Fprintln(out, header(mode))
	fmt.Fprintf(out, "Optimizing %s (%s), dim %d\n", spec.Name, spec.Description, cfg.Run.Dim)
	fmt.Fprintf(out, "Testing with %d random starting points\n", cfg.Batch.Starts)
	fmt.Fprintf(out, "Base LR: %g, Total Steps: %d\n", cfg.Run.LearningRate, cfg.Run.Steps)
	fmt.Fprintln(out, rule)

	starts := multistart.RandomPoints(cfg.Batch.Starts, cfg.Run.Dim, cfg.Batch.Lower, cfg.Batch.Upper, cfg.Batch.Seed)

	bar := progressbar.NewOptions(len(starts),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Optimizing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionUseANSICodes(true),
	)

	msCfg := multistart.Config{
		LearningRate: cfg.Run.LearningRate,
		Steps:        cfg.Run.Steps,
		Mode:         mode,
		Strategy:     strategy,
		Policy:       cfg.AscentPolicy(),
		Workers:      cfg.Batch.Workers,
		Observer: func(index int) ascent.Observer {
			return ascent.LogObserver{Attrs: []any{"start_index", index}}
		},
	}
	results, summary, err := multistart.Run(ctx, f, starts, msCfg, func(multistart.Result) {
		bar.Add(1)
	})
	bar.Finish()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}

	if batchDetails {
		for _, res := range results {
			fmt.Fprintf(out, "\nTest Point %d:\n", res.Index+1)
			fmt.Fprintf(out, "Initial Point: %s\n", formatPoint(res.Start))
			if res.Err != nil {
				fmt.Fprintf(out, "Failed: %v\n", res.Err)
				continue
			}
			fmt.Fprintf(out, "Final Point after %d steps: %s, f(p): %.6f\n", cfg.Run.Steps, formatPoint(res.Final), res.Value)
		}
		fmt.Fprintln(out, rule)
	}

	if summary.Runs > summary.Failed {
		best := results[summary.BestIndex]
		fmt.Fprintf(out, "Best run: Test Point %d, Final Point: %s, f(p): %.6f\n", best.Index+1, formatPoint(best.Final), best.Value)
		fmt.Fprintf(out, "Mean f(p) over successful runs: %.6f\n", summary.MeanValue)
	}
	if summary.Failed > 0 {
		fmt.Fprintf(out, "Failed runs: %d of %d\n", summary.Failed, summary.Runs)
	}
	if maxPoint := spec.Maximum(cfg.Run.Dim); maxPoint != nil {
		maxValue, _ := f.Evaluate(maxPoint)
		fmt.Fprintf(out, "Analytical maximum is at %s with f(p): %.6f\n", formatPoint(maxPoint), maxValue)
	}

	fmt.Fprintf(out, "\nExecution time for %d test points (%d steps each): %.3f seconds\n", summary.Runs, cfg.Run.Steps, summary.Total.Seconds())
	fmt.Fprintf(out, "Average execution time per test point: %.3f seconds\n", summary.AvgPerRun.Seconds())

	if batchExample && cfg.Run.Dim == 2 {
		return runExample(cmd, f, mode, strategy, cfg)
	}
	return nil
}

// runExample prints every step of a short run from (4, 5).
func runExample(cmd *cobra.Command, f ascent.Objective, mode ascent.Mode, strategy ascent.Strategy, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	start := []float64{4.0, 5.0}

	fmt.Fprintf(out, "\n--- Example with %d steps ---\n", exampleSteps)
	fmt.Fprintf(out, "Initial Point: %s\n", formatPoint(start))

	initialValue, err := f.Evaluate(start)
	if err != nil {
		return err
	}

	printer := &stepPrinter{w: out, showStrategy: mode == ascent.Dynamic}
	opts := []ascent.Option{ascent.WithObserver(printer), ascent.WithPolicy(cfg.AscentPolicy())}

	began := time.Now()
	var final []float64
	if mode == ascent.Dynamic {
		final, err = ascent.OptimizeDynamic(f, start, cfg.Run.LearningRate, exampleSteps, strategy, initialValue, opts...)
	} else {
		final, err = ascent.OptimizeFixed(f, start, cfg.Run.LearningRate, exampleSteps, opts...)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(began)

	value, err := f.Evaluate(final)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strings.Repeat("=", 82))
	fmt.Fprintf(out, "Final Point after %d steps: %s, f(p): %.6f\n", exampleSteps, formatPoint(final), value)
	fmt.Fprintf(out, "Execution time for %d steps: %.3f seconds\n", exampleSteps, elapsed.Seconds())
	return nil
}
