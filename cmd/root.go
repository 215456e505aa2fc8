package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwbudde/gradascent/internal/config"
	"github.com/cwbudde/gradascent/internal/store"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gradascent",
	Short: "Numerical gradient ascent with dynamic step strategies",
	Long: `gradascent maximizes scalar functions of several variables by gradient
ascent on central finite-difference gradients. Runs use either a fixed
learning rate or switch between NORMAL, CAUTIOUS and BOLD step strategies
based on recent progress.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Logs go to stderr so step output on stdout stays readable
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON configuration file (flags override its values)")
}

// loadConfig reads --config when given, otherwise the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded configuration", "path", configPath)
	return cfg, nil
}

// openStore opens the run-history backend selected in cfg.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "fs":
		return store.NewFSStore(cfg.DataDir)
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return store.NewSQLiteStore(filepath.Join(cfg.DataDir, "runs.db"))
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
