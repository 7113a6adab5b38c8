// RaveDigest collector — fetches the configured RSS feeds, stores new
// articles, and streams them to the analyzer.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ravedigest/ravedigest/pkg/api"
	"github.com/ravedigest/ravedigest/pkg/bus"
	"github.com/ravedigest/ravedigest/pkg/collector"
	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/database"
	"github.com/ravedigest/ravedigest/pkg/feed"
	"github.com/ravedigest/ravedigest/pkg/health"
	"github.com/ravedigest/ravedigest/pkg/logging"
	"github.com/ravedigest/ravedigest/pkg/metrics"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/store"
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
	logging.Setup("collector", cfg.Logging)

	addr, err := config.ListenAddr(8001)
	if err != nil {
		slog.Error("Invalid listen address", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting collector", "version", version.Full(), "addr", addr, "feeds", len(cfg.Service.RSSFeeds))

	ctx := context.Background()

	// 2. Backing stores, connected concurrently
	var (
		dbClient  *database.Client
		busClient *bus.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dbClient, err = database.NewClient(gctx, cfg.Postgres)
		return err
	})
	g.Go(func() error {
		var err error
		busClient, err = bus.NewClient(gctx, cfg.Redis, cfg.Service)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("Failed to connect backing stores", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	defer func() {
		if err := busClient.Close(); err != nil {
			slog.Error("Error closing bus client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL and Redis")

	// 3. Collector service
	m := metrics.New("collector")
	policy := retry.Policy{
		MaxRetries:    cfg.Service.MaxRetries,
		BaseDelay:     cfg.Service.RetryDelay,
		BackoffFactor: cfg.Service.RetryBackoffFactor,
	}
	fetcher := feed.NewFetcher(cfg.Service.HTTPTimeout)
	svc := collector.NewService(cfg.Service.RSSFeeds, fetcher, store.New(dbClient.DB()), busClient, policy, m)

	// 4. Health surface
	checker := health.NewChecker("collector")
	checker.AddCheck("database", func(ctx context.Context) error {
		_, err := dbClient.Health(ctx)
		return err
	})
	checker.AddCheck("redis", busClient.Health)

	// The first feeds get reachability probes; a dead feed only degrades.
	probeClient := &http.Client{Timeout: cfg.Service.HTTPTimeout}
	for i, f := range cfg.Service.RSSFeeds {
		if i == 3 {
			break
		}
		checker.AddOptionalCheck("feed:"+f.Source, feedProbe(probeClient, f.URL))
	}

	server := api.NewServer(checker, m)
	svc.Register(server.Engine())

	// 5. HTTP server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

func feedProbe(client *http.Client, url string) health.CheckFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("feed returned status %d", resp.StatusCode)
		}
		return nil
	}
}
