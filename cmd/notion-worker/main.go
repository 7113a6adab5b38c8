// RaveDigest notion worker — consumes composed digests and publishes each
// one as a Notion database page, exactly once.
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
	"golang.org/x/sync/errgroup"

	"github.com/ravedigest/ravedigest/pkg/api"
	"github.com/ravedigest/ravedigest/pkg/bus"
	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/database"
	"github.com/ravedigest/ravedigest/pkg/health"
	"github.com/ravedigest/ravedigest/pkg/logging"
	"github.com/ravedigest/ravedigest/pkg/metrics"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/notion"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/store"
	"github.com/ravedigest/ravedigest/pkg/version"
	"github.com/ravedigest/ravedigest/pkg/worker"
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
	logging.Setup("notion", cfg.Logging)

	if err := cfg.Notion.Validate(); err != nil {
		slog.Error("Invalid Notion configuration", "error", err)
		os.Exit(1)
	}
	addr, err := config.ListenAddr(8004)
	if err != nil {
		slog.Error("Invalid listen address", "error", err)
		os.Exit(1)
	}
	slog.Info("Starting notion worker", "version", version.Full(), "addr", addr)

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

	// 3. Publisher
	m := metrics.New("notion")
	policy := retry.Policy{
		MaxRetries:    cfg.Service.MaxRetries,
		BaseDelay:     cfg.Service.RetryDelay,
		BackoffFactor: cfg.Service.RetryBackoffFactor,
	}
	notionClient := notion.NewClient(cfg.Notion)
	breaker := retry.NewCircuitBreaker(5, time.Minute, slog.Default())
	publisher := notion.NewPublisher(store.New(dbClient.DB()), busClient, notionClient, policy, breaker, m)

	// 4. Worker loop on digest_stream
	group := cfg.Service.Group("notion")
	w := worker.New(worker.Config{
		Stream:   models.StreamDigests,
		Group:    group,
		Consumer: "notion-consumer-1",
	}, busClient, publisher, m)
	w.Start(ctx)

	// 5. Health and status surface
	checker := health.NewChecker("notion")
	checker.AddCheck("database", func(ctx context.Context) error {
		_, err := dbClient.Health(ctx)
		return err
	})
	checker.AddCheck("redis", busClient.Health)
	checker.AddCheck("notion", notionClient.Health)

	server := api.NewServer(checker, m)
	server.Engine().GET("/notion/status", api.StreamStatusHandler(busClient, models.StreamDigests, group))

	// 6. HTTP server
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	w.Stop()
	slog.Info("Shutdown complete")
}
