package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/gradascent/internal/server"
	"github.com/cwbudde/gradascent/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveBackend string
	serveDataDir string
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long: `Start the HTTP API for submitting ascent jobs, following their progress
over server-sent events and browsing the run history.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveBackend, "store", "fs", "Run history backend: fs or sqlite")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Data directory for the run history")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Keep finished jobs in memory only")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = serveBackend
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Store.DataDir = serveDataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var runStore store.Store
	if !serveNoStore {
		runStore, err = openStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer runStore.Close()
	}

	srv := server.NewServer(serveAddr, runStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
