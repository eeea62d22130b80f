package cli

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

	"github.com/spf13/cobra"

	"github.com/makt28/tgwatch/internal/config"
	"github.com/makt28/tgwatch/internal/metrics"
	"github.com/makt28/tgwatch/internal/monitor"
	"github.com/makt28/tgwatch/internal/storage"
	"github.com/makt28/tgwatch/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run ticks on the configured schedule and serve /status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting tgwatch",
		"version", Version,
		"schedule", cfg.System.Schedule,
		"store", cfg.Store.Driver,
	)

	// --- 1. State store ---
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("failed to close state store", "error", err)
		}
	}()
	repo := storage.NewStateRepository(store, cfg.Store.Key)

	// --- 2. Metrics ---
	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	// --- 3. Runner & Scheduler ---
	sched, err := monitor.NewScheduler(newRunner(cfg, repo, m), cfg.System.Schedule, cfg.System.RunOnStart)
	if err != nil {
		return err
	}

	// --- 4. Status server ---
	stopCh := make(chan struct{})
	serverErr := make(chan error, 1)
	var srv *http.Server
	if cfg.Status.Enabled {
		srv = &http.Server{
			Addr: cfg.Status.BindAddress,
			Handler: web.NewRouter(web.Options{
				States:   repo,
				Gatherer: reg,
				Auth:     cfg.Status.Auth,
				Version:  Version,
				Schedule: cfg.System.Schedule,
			}, stopCh),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("status server listening", "address", cfg.Status.BindAddress, "auth", cfg.Status.Auth.Enabled())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	sched.Start()

	// --- 5. Graceful Shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
	case err := <-serverErr:
		slog.Error("status server failed", "error", err)
		runErr = fmt.Errorf("status server: %w", err)
	}

	close(stopCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sched.Stop(shutdownCtx)
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", "error", err)
		}
	}

	slog.Info("tgwatch stopped gracefully")
	return runErr
}
