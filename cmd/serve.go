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

	"github.com/cwbudde/antcolonytsp/internal/server"
	"github.com/cwbudde/antcolonytsp/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts the JSON API for submitting solve jobs, following their progress
over server-sent events, and reading tours, traces and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for checkpoints, traces and results")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Keep jobs in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig.Server
	if cmd.Flags().Changed("addr") || configPath == "" {
		cfg.Addr = serveAddr
	}
	if cmd.Flags().Changed("data-dir") || configPath == "" {
		cfg.DataDir = serveDataDir
	}

	var jobStore store.Store
	if !serveNoStore {
		fsStore, err := store.NewFSStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		jobStore = fsStore
		slog.Info("Using checkpoint store", "dir", cfg.DataDir)
	}

	srv := server.NewServer(cfg, appConfig.Solver, jobStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
