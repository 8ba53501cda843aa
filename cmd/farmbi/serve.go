package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OldStager01/farm-bi/api"
	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/internal/scheduler"
	"github.com/OldStager01/farm-bi/pkg/database"
)

func newServeCmd(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, websocket feed and scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, migrate bool) error {
	cfg := a.cfg
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	rt, err := build(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if migrate {
		mctx, cancel := context.WithTimeout(context.Background(), cfg.Database.MigrationTimeout)
		err := database.NewMigrator(rt.db).Run(mctx)
		cancel()
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if cfg.Prometheus.Enabled && cfg.Prometheus.Port > 0 {
		metrics.StartServer(cfg.Prometheus.Port, cfg.Prometheus.Path)
	}

	if cfg.Scheduler.Enabled {
		jobs := scheduler.New(rt.publisher, rt.jobs()...)
		jobs.Start()
		defer jobs.Stop()
	}

	server := api.NewServer(cfg.API, cfg.WebSocket, cfg.Prometheus, api.Deps{
		Auth:      rt.auth,
		Closer:    rt.closer,
		Snapshots: rt.snapshots,
		Alerts:    rt.alerts,
		Anomalies: rt.anomalies,
		Patterns:  rt.patterns,
		Cache:     rt.cache,
		Health:    rt.health,
		Events:    rt.bus.SubscribeAll(),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
