// Package collector implements the RSS collection pass: fetch every
// configured feed, deduplicate by URL, persist new articles and publish
// them on raw_articles.
package collector

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/feed"
	"github.com/ravedigest/ravedigest/pkg/metrics"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/store"
)

// SeenURLsKey is the Redis set of every URL the collector has processed.
const SeenURLsKey = "seen_urls"

// Store is the subset of article persistence the collector uses.
type Store interface {
	InsertArticle(ctx context.Context, article models.Article) error
}

// Bus is the subset of bus operations the collector uses.
type Bus interface {
	IsMember(ctx context.Context, key, member string) (bool, error)
	AddMember(ctx context.Context, key, member string) error
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// Report summarizes one collection run.
type Report struct {
	Status         string `json:"status"`
	TotalCollected int    `json:"total_collected"`
	TotalSkipped   int    `json:"total_skipped"`
	TotalErrors    int    `json:"total_errors"`
	FeedsProcessed int    `json:"feeds_processed"`
}

type outcome int

const (
	outcomeCollected outcome = iota
	outcomeSkipped
	outcomeError
)

// Service runs collection passes. One instance per process; a single
// collector is assumed, so runs are not sharded.
type Service struct {
	feeds   []config.Feed
	parser  feed.Parser
	store   Store
	bus     Bus
	policy  retry.Policy
	metrics *metrics.Metrics
}

// NewService creates the collector over its collaborators.
// metrics may be nil (instrumentation disabled).
func NewService(feeds []config.Feed, parser feed.Parser, st Store, b Bus, policy retry.Policy, m *metrics.Metrics) *Service {
	return &Service{
		feeds:   feeds,
		parser:  parser,
		store:   st,
		bus:     b,
		policy:  policy,
		metrics: m,
	}
}

// CollectRSS walks every configured feed once. Feed fetch errors and
// per-article failures are logged and counted; the run continues. The
// returned error is non-nil only when the context ends the run early.
func (s *Service) CollectRSS(ctx context.Context) (Report, error) {
	report := Report{Status: "success", FeedsProcessed: len(s.feeds)}
	slog.Info("Starting RSS collection", "feeds", len(s.feeds))

	for _, f := range s.feeds {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		articles, err := s.parser.Parse(ctx, f)
		if err != nil {
			slog.Error("Failed to parse feed", "feed", f.Source, "error", err)
			report.TotalErrors++
			continue
		}
		slog.Info("Parsed feed", "feed", f.Source, "articles", len(articles))

		for _, article := range articles {
			switch s.processArticle(ctx, article) {
			case outcomeCollected:
				report.TotalCollected++
			case outcomeSkipped:
				report.TotalSkipped++
			case outcomeError:
				report.TotalErrors++
			}
		}
	}

	slog.Info("Collection complete",
		"collected", report.TotalCollected,
		"skipped", report.TotalSkipped,
		"errors", report.TotalErrors)
	return report, nil
}

func (s *Service) processArticle(ctx context.Context, article models.Article) outcome {
	seen, err := s.bus.IsMember(ctx, SeenURLsKey, article.URL)
	if err != nil {
		// Fail open: a bus hiccup must not block collection; the store's
		// unique URL constraint still stops duplicates.
		slog.Warn("Failed to check seen set", "url", article.URL, "error", err)
	}
	if seen {
		s.count(article.Source, metrics.ResultSkipped)
		return outcomeSkipped
	}

	if err := s.store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicateURL) {
			s.markSeen(ctx, article.URL)
			s.count(article.Source, metrics.ResultSkipped)
			return outcomeSkipped
		}
		slog.Error("Failed to save article", "url", article.URL, "error", err)
		s.count(article.Source, metrics.ResultError)
		return outcomeError
	}
	s.markSeen(ctx, article.URL)

	fields := models.NewRawArticle(article).Fields()
	err = retry.Do(ctx, s.policy, slog.Default(), "publish raw article", func(ctx context.Context) error {
		_, appendErr := s.bus.Append(ctx, models.StreamRawArticles, fields)
		return appendErr
	})
	if err != nil {
		// The row is persisted but never streamed; republishing from the
		// store recovers such orphans.
		slog.Error("Failed to publish raw article", "url", article.URL, "error", err)
		s.count(article.Source, metrics.ResultError)
		return outcomeError
	}

	s.count(article.Source, metrics.ResultOK)
	return outcomeCollected
}

func (s *Service) markSeen(ctx context.Context, url string) {
	if err := s.bus.AddMember(ctx, SeenURLsKey, url); err != nil {
		slog.Warn("Failed to mark URL as seen", "url", url, "error", err)
	}
}

func (s *Service) count(source, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ArticleCollected(source, result)
}
