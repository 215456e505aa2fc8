package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/gradascent/internal/ascent"
	"github.com/cwbudde/gradascent/internal/config"
	"github.com/cwbudde/gradascent/internal/objective"
	"github.com/cwbudde/gradascent/internal/opt"
	"github.com/cwbudde/gradascent/internal/store"
	"github.com/spf13/cobra"
)

var (
	runObjective  string
	runDim        int
	runStart      []float64
	runLR         float64
	runSteps      int
	runMode       string
	runStrategy   string
	runSeedSearch string
	runSeedIters  int
	runSeedPop    int
	runSeed       int64
	runSave       bool
	runTrace      bool
	runQuiet      bool
	runDataDir    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run gradient ascent on a named objective",
	Long: `Run gradient ascent from a start point on one of the registered objectives.

Each evaluated point is printed with its value. In dynamic mode the active
strategy and every strategy switch are printed as well.`,
	RunE: runAscent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runObjective, "objective", "paraboloid", "Objective to maximize (see 'objectives')")
	runCmd.Flags().IntVar(&runDim, "dim", 2, "Dimension of the search space")
	runCmd.Flags().Float64SliceVar(&runStart, "start", nil, "Start point, comma separated (default: origin)")
	runCmd.Flags().Float64Var(&runLR, "lr", 0.1, "Base learning rate")
	runCmd.Flags().IntVar(&runSteps, "steps", 100, "Number of ascent iterations")
	runCmd.Flags().StringVar(&runMode, "mode", "dynamic", "Step mode: fixed or dynamic")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "NORMAL", "Initial strategy of a dynamic run: NORMAL, CAUTIOUS or BOLD")
	runCmd.Flags().StringVar(&runSeedSearch, "seed-search", "none", "Global search for the start point: none or mayfly")
	runCmd.Flags().IntVar(&runSeedIters, "seed-iters", 200, "Mayfly iterations for the seed search")
	runCmd.Flags().IntVar(&runSeedPop, "seed-pop", 30, "Mayfly population for the seed search (min 20)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Random seed for the seed search")
	runCmd.Flags().BoolVar(&runSave, "save", false, "Save the run to the run history")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Write a per-step JSONL trace next to the saved run")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Only print the summary")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "./data", "Data directory for the run history")
}

// applyAscentFlags copies the explicitly set flags shared by run and batch over
// the loaded configuration.
func applyAscentFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("objective") {
		cfg.Run.Objective = runObjective
	}
	if flags.Changed("dim") {
		cfg.Run.Dim = runDim
	}
	if flags.Changed("lr") {
		cfg.Run.LearningRate = runLR
	}
	if flags.Changed("steps") {
		cfg.Run.Steps = runSteps
	}
	if flags.Changed("mode") {
		cfg.Run.Mode = runMode
	}
	if flags.Changed("strategy") {
		cfg.Run.Strategy = runStrategy
	}
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	applyAscentFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.Run.Start = runStart
		if !flags.Changed("dim") {
			cfg.Run.Dim = len(runStart)
		}
	}
	if flags.Changed("seed-search") {
		cfg.SeedSearch.Method = runSeedSearch
	}
	if flags.Changed("seed-iters") {
		cfg.SeedSearch.Iterations = runSeedIters
	}
	if flags.Changed("seed-pop") {
		cfg.SeedSearch.Population = runSeedPop
	}
	if flags.Changed("seed") {
		cfg.SeedSearch.Seed = runSeed
	}
	if flags.Changed("data-dir") {
		cfg.Store.DataDir = runDataDir
	}
}

func runAscent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
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

	start := cfg.StartPoint()
	if cfg.SeedSearch.Method == "mayfly" {
		lower := make([]float64, cfg.Run.Dim)
		upper := make([]float64, cfg.Run.Dim)
		for i := range lower {
			lower[i] = cfg.SeedSearch.Lower
			upper[i] = cfg.SeedSearch.Upper
		}
		start, err = opt.SeedSearch(f, lower, upper, cfg.SeedSearch.Iterations, cfg.SeedSearch.Population, cfg.SeedSearch.Seed)
		if err != nil {
			return fmt.Errorf("seed search failed: %w", err)
		}
	}

	initialValue, err := f.Evaluate(start)
	if err != nil {
		return fmt.Errorf("failed to evaluate start point: %w", err)
	}

	runID := store.NewRunID()
	out := cmd.OutOrStdout()

	observers := ascent.MultiObserver{ascent.LogObserver{Attrs: []any{"run_id", runID}}}
	if !runQuiet {
		observers = append(observers, &stepPrinter{w: out, showStrategy: mode == ascent.Dynamic})
	}

	var (
		tw    *store.TraceWriter
		trace *store.TraceObserver
	)
	if runTrace {
		tw, err = store.NewTraceWriter(cfg.Store.DataDir, runID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer tw.Close()
		trace = store.NewTraceObserver(tw)
		observers = append(observers, trace)
	}

	slog.Info("Starting run",
		"run_id", runID,
		"objective", spec.Name,
		"dim", cfg.Run.Dim,
		"mode", mode.String(),
		"learning_rate", cfg.Run.LearningRate,
		"steps", cfg.Run.Steps,
	)

	opts := []ascent.Option{ascent.WithObserver(observers), ascent.WithPolicy(cfg.AscentPolicy())}
	var r *ascent.Run
	if mode == ascent.Dynamic {
		r, err = ascent.NewDynamicRun(f, start, cfg.Run.LearningRate, cfg.Run.Steps, strategy, initialValue, opts...)
	} else {
		r, err = ascent.NewFixedRun(f, start, cfg.Run.LearningRate, cfg.Run.Steps, opts...)
	}
	if err != nil {
		return err
	}

	if !runQuiet {
		fmt.Fprintln(out, header(mode))
	}
	began := time.Now()
	final, err := r.Finish()
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	elapsed := time.Since(began)

	finalValue, ok := r.Value()
	if !ok {
		finalValue, err = f.Evaluate(final)
		if err != nil {
			return fmt.Errorf("failed to evaluate final point: %w", err)
		}
	}

	fmt.Fprintf(out, "\nFinal Point after %d steps: %s, f(p): %.6f\n", cfg.Run.Steps, formatPoint(final), finalValue)
	if maxPoint := spec.Maximum(cfg.Run.Dim); maxPoint != nil {
		maxValue, _ := f.Evaluate(maxPoint)
		fmt.Fprintf(out, "Analytical maximum is at %s with f(p): %.6f\n", formatPoint(maxPoint), maxValue)
		fmt.Fprintf(out, "Distance to maximum: %.6f\n", objective.Distance(final, maxPoint))
	}
	fmt.Fprintf(out, "Execution time: %.3f seconds\n", elapsed.Seconds())

	if trace != nil {
		if err := trace.Err(); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		slog.Debug("Trace written", "run_id", runID, "path", tw.Path())
	}

	if runSave || runTrace {
		record := &store.RunRecord{
			RunID:        runID,
			Objective:    spec.Name,
			Mode:         mode.String(),
			Strategy:     strategy,
			LearningRate: cfg.Run.LearningRate,
			Steps:        cfg.Run.Steps,
			InitialPoint: start,
			FinalPoint:   final,
			InitialValue: initialValue,
			FinalValue:   finalValue,
			Timestamp:    time.Now(),
			Elapsed:      elapsed,
		}
		if math.IsInf(finalValue, 0) || math.IsNaN(finalValue) {
			slog.Warn("Run diverged, not saving", "run_id", runID, "final_value", finalValue)
			return nil
		}
		if err := saveRecord(cfg.Store, record); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved run %s\n", runID)
	}

	return nil
}

func saveRecord(cfg config.StoreConfig, record *store.RunRecord) error {
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.SaveRun(record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	slog.Info("Run saved", "run_id", record.RunID, "backend", cfg.Backend, "data_dir", cfg.DataDir)
	return nil
}
