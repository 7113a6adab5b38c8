// Package scheduler drives the daily pipeline pass: trigger collection,
// wait for enrichment to drain, compose the digest, wait for publication.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"

	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/retry"
)

const jobName = "daily-digest"

// Service owns the cron schedule and the HTTP calls into the other
// services. It keeps no pipeline state of its own.
type Service struct {
	cfg    config.SchedulerSettings
	client *http.Client
	probe  *http.Client

	// trigger spaces the collector/composer calls, poll the drain probes.
	// Both run at a fixed delay rather than an exponential one.
	trigger retry.Policy
	poll    retry.Policy

	cron gocron.Scheduler
	job  gocron.Job
}

// New builds the service and registers the daily job at cfg.ScheduleTime.
// The schedule does not run until Start.
func New(cfg config.SchedulerSettings) (*Service, error) {
	hour, minute, err := parseScheduleTime(cfg.ScheduleTime)
	if err != nil {
		return nil, err
	}
	attempts := cfg.StatusMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	s := &Service{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		probe:   &http.Client{Timeout: cfg.StatusTimeout},
		trigger: retry.Policy{MaxRetries: 2, BaseDelay: 5 * time.Second, BackoffFactor: 1},
		poll:    retry.Policy{MaxRetries: attempts - 1, BaseDelay: 10 * time.Second, BackoffFactor: 1},
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	job, err := cron.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(s.RunDaily),
		gocron.WithName(jobName),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("failed to schedule daily job: %w", err)
	}
	s.cron = cron
	s.job = job
	return s, nil
}

// Start begins executing the daily schedule.
func (s *Service) Start() {
	s.cron.Start()
	if next, err := s.job.NextRun(); err == nil {
		slog.Info("Daily job scheduled", "at", s.cfg.ScheduleTime, "next_run", next)
	}
}

// TriggerNow runs the daily job once, immediately, without touching the
// schedule.
func (s *Service) TriggerNow() error {
	return s.job.RunNow()
}

// Shutdown stops the schedule and waits for a running pass to finish.
func (s *Service) Shutdown() error {
	return s.cron.Shutdown()
}

// Register mounts the plain health route the compose targets also poll.
func (s *Service) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// RunDaily executes one full pipeline pass. Each step failure is logged
// and aborts the pass; the next scheduled run starts fresh.
func (s *Service) RunDaily() {
	ctx := context.Background()
	log := slog.With("job", jobName)
	log.Info("Starting daily job")

	if err := s.triggerCollector(ctx); err != nil {
		log.Error("Failed to trigger collector", "error", err)
		return
	}
	if err := s.waitForDrain(ctx, "analyzer", s.cfg.AnalyzerURL+"/analyzer/status"); err != nil {
		log.Warn("Analyzer did not become idle, deferring to next schedule", "error", err)
		return
	}
	if err := s.triggerComposer(ctx); err != nil {
		log.Error("Failed to trigger composer", "error", err)
		return
	}
	if err := s.waitForDrain(ctx, "notion-worker", s.cfg.NotionWorkerURL+"/notion/status"); err != nil {
		log.Warn("Notion worker did not become idle, deferring to next schedule", "error", err)
		return
	}

	log.Info("Daily job completed successfully")
}

func (s *Service) triggerCollector(ctx context.Context) error {
	url := s.cfg.CollectorURL + "/collect/rss"
	slog.Info("Triggering collector service", "url", url)
	return retry.Do(ctx, s.trigger, slog.Default(), "trigger collector", func(ctx context.Context) error {
		return s.call(ctx, http.MethodGet, url)
	})
}

func (s *Service) triggerComposer(ctx context.Context) error {
	url := s.cfg.ComposerURL + "/compose"
	slog.Info("Triggering composer service", "url", url)
	return retry.Do(ctx, s.trigger, slog.Default(), "trigger composer", func(ctx context.Context) error {
		return s.call(ctx, http.MethodPost, url)
	})
}

// call hits a trigger endpoint. Any 2xx is success; /compose answers 204
// when there is nothing to compose.
func (s *Service) call(ctx context.Context, method, url string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// waitForDrain polls a drain endpoint until the consumer group reports
// idle. A 404, or a status saying the stream does not exist, counts as
// idle: nothing was ever streamed, so there is no backlog to wait out.
func (s *Service) waitForDrain(ctx context.Context, name, url string) error {
	log := slog.With("service", name)
	log.Info("Waiting for service to become idle")
	return retry.Do(ctx, s.poll, log, "wait for "+name+" to drain", func(ctx context.Context) error {
		idle, err := s.probeStatus(ctx, url)
		if err != nil {
			return err
		}
		if !idle {
			return fmt.Errorf("%s is not idle yet", name)
		}
		log.Info("Service is idle")
		return nil
	})
}

type drainStatus struct {
	IsIdle  bool   `json:"is_idle"`
	Status  string `json:"status"`
	Pending int64  `json:"pending_messages"`
}

func (s *Service) probeStatus(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var st drainStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return false, fmt.Errorf("failed to decode status from %s: %w", url, err)
	}
	if st.IsIdle || strings.Contains(st.Status, "Stream not found") {
		return true, nil
	}
	return false, nil
}

func parseScheduleTime(v string) (hour, minute uint, err error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule time %q: %w", v, err)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}
