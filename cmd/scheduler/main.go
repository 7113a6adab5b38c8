// RaveDigest scheduler — fires the daily pipeline pass: collect, wait for
// enrichment, compose, wait for publication.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ravedigest/ravedigest/pkg/api"
	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/health"
	"github.com/ravedigest/ravedigest/pkg/logging"
	"github.com/ravedigest/ravedigest/pkg/metrics"
	"github.com/ravedigest/ravedigest/pkg/scheduler"
	"github.com/ravedigest/ravedigest/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup("scheduler", cfg.Logging)

	addr, err := config.ListenAddr(8005)
	if err != nil {
		slog.Error("Invalid listen address", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting scheduler", "version", version.Full(), "addr", addr, "schedule_time", cfg.Scheduler.ScheduleTime)

	// 2. Daily job
	svc, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		slog.Error("Failed to build scheduler", "error", err)
		os.Exit(1)
	}
	svc.Start()

	// 3. Health surface. The scheduler talks only to the other services,
	// so there are no dependency probes beyond liveness.
	m := metrics.New("scheduler")
	server := api.NewServer(health.NewChecker("scheduler"), m)
	svc.Register(server.Engine())

	// 4. HTTP server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown: stop the HTTP listener, then wait out any
	// running pipeline pass.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := svc.Shutdown(); err != nil {
		slog.Error("Scheduler shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
