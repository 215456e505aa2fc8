package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/cwbudde/gradascent/internal/config"
	"github.com/cwbudde/gradascent/internal/store"
	"github.com/spf13/cobra"
)

var (
	runsBackend   string
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
	showTrace     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage the run history",
	Long: `Manage saved optimization runs including listing, inspecting and cleaning
old runs. Runs are saved by 'run --save' and by jobs of the HTTP server.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved runs",
	Long:  `Display all saved runs with metadata including run ID, timestamp, objective, steps, final value and size on disk.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one saved run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can specify how many runs to keep or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsBackend, "store", "fs", "Run history backend: fs or sqlite")
	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for the run history")

	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Print the per-step trace if one was recorded")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// runsStoreConfig resolves the store settings from --config and the runs flags.
func runsStoreConfig(cmd *cobra.Command) (config.StoreConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.StoreConfig{}, err
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = runsBackend
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Store.DataDir = runsDataDir
	}
	if err := cfg.Validate(); err != nil {
		return config.StoreConfig{}, err
	}
	return cfg.Store, nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	storeCfg, err := runsStoreConfig(cmd)
	if err != nil {
		return err
	}
	runStore, err := openStore(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer runStore.Close()

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	printRunTable(out, infos, storeCfg.DataDir)
	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func printRunTable(out io.Writer, infos []store.RunInfo, dataDir string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tOBJECTIVE\tMODE\tDIM\tSTEPS\tFINAL VALUE\tSIZE")
	fmt.Fprintln(w, "------\t---------\t---------\t----\t---\t-----\t-----------\t----")

	for _, info := range infos {
		// Only the filesystem backend and traces keep a run directory
		sizeStr := "-"
		if size, err := getDirSize(filepath.Join(dataDir, "runs", info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.6f\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Objective,
			info.Mode,
			info.Dim,
			info.Steps,
			info.FinalValue,
			sizeStr,
		)
	}

	w.Flush()
}

func runShowRun(cmd *cobra.Command, args []string) error {
	storeCfg, err := runsStoreConfig(cmd)
	if err != nil {
		return err
	}
	runStore, err := openStore(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer runStore.Close()

	record, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run: %s\n", record.RunID)
	fmt.Fprintf(out, "Finished: %s\n", record.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Objective: %s\n", record.Objective)
	fmt.Fprintf(out, "Mode: %s\n", record.Mode)
	if record.Mode == "dynamic" {
		fmt.Fprintf(out, "Initial strategy: %s\n", record.Strategy)
	}
	fmt.Fprintf(out, "Learning rate: %g\n", record.LearningRate)
	fmt.Fprintf(out, "Steps: %d\n", record.Steps)
	fmt.Fprintf(out, "Initial Point: %s, f(p): %.6f\n", formatPoint(record.InitialPoint), record.InitialValue)
	fmt.Fprintf(out, "Final Point: %s, f(p): %.6f\n", formatPoint(record.FinalPoint), record.FinalValue)
	fmt.Fprintf(out, "Improvement: %.6f\n", record.Improvement())
	fmt.Fprintf(out, "Elapsed: %s\n", record.Elapsed)

	if !showTrace {
		return nil
	}

	reader, err := store.NewTraceReader(storeCfg.DataDir, record.RunID)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(out, "\nNo trace recorded for this run.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	fmt.Fprintf(out, "\nTrace (%d entries):\n", len(entries))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSTRATEGY\tRATE\tF(P)\tPOINT")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%g\t%.6f\t%s\n", e.Step, e.Strategy, e.Rate, e.Value, formatPoint(e.Point))
	}
	return w.Flush()
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	storeCfg, err := runsStoreConfig(cmd)
	if err != nil {
		return err
	}
	runStore, err := openStore(storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer runStore.Close()

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs to clean.")
		return nil
	}

	toDelete := store.SelectForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			shortID(info.RunID),
			info.Objective,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
			continue
		}
		// The sqlite backend leaves trace files behind
		if err := store.DeleteTrace(storeCfg.DataDir, info.RunID); err != nil {
			slog.Warn("Failed to delete trace", "run_id", info.RunID, "error", err)
		}
		slog.Info("Deleted run", "run_id", info.RunID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
