// Package analyzer turns raw articles into enriched ones: readable page
// text, an LLM summary with its relevance score, and the developer-focus
// flag.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravedigest/ravedigest/pkg/classify"
	"github.com/ravedigest/ravedigest/pkg/extract"
	"github.com/ravedigest/ravedigest/pkg/llm"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/worker"
)

// Store is the subset of the article store the analyzer writes to.
type Store interface {
	UpsertEnrichment(ctx context.Context, a models.Article) error
}

// Bus is the subset of the message bus the analyzer publishes on.
type Bus interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// Service enriches one raw article per stream message.
type Service struct {
	store      Store
	bus        Bus
	extractor  extract.Extractor
	summarizer llm.Summarizer
	classifier *classify.Classifier
	policy     retry.Policy
}

func NewService(st Store, b Bus, ex extract.Extractor, sum llm.Summarizer, cl *classify.Classifier, policy retry.Policy) *Service {
	return &Service{
		store:      st,
		bus:        b,
		extractor:  ex,
		summarizer: sum,
		classifier: cl,
		policy:     policy,
	}
}

// HandleMessage enriches a raw_articles payload. A nil return acks the
// message; any error leaves it pending for redelivery.
func (s *Service) HandleMessage(ctx context.Context, msg worker.Message) error {
	raw, err := models.ParseRawArticle(msg.Fields)
	if err != nil {
		return err
	}
	log := slog.With("article_id", raw.ID, "url", raw.URL)
	log.Info("Processing article", "title", truncate(raw.Title, 50))

	var text string
	err = retry.Do(ctx, s.policy, log, "extract article text", func(ctx context.Context) error {
		var exErr error
		text, exErr = s.extractor.Extract(ctx, raw.URL)
		return exErr
	})
	if err != nil {
		return err
	}

	var summary string
	var relevance float64
	err = retry.Do(ctx, s.policy, log, "summarize article", func(ctx context.Context) error {
		var llmErr error
		summary, relevance, llmErr = s.summarizer.Summarize(ctx, text)
		return llmErr
	})
	if err != nil {
		return err
	}

	enriched := models.EnrichedArticle{
		RawArticle:     raw,
		RelevanceScore: relevance,
		DeveloperFocus: s.classifier.DeveloperFocus(raw.Title + " " + summary),
	}
	// The feed-supplied summary is replaced by the generated one.
	enriched.Summary = summary

	if err := retry.Do(ctx, s.policy, log, "save enrichment", func(ctx context.Context) error {
		return s.store.UpsertEnrichment(ctx, enriched.Article())
	}); err != nil {
		return err
	}

	if _, err := s.bus.Append(ctx, models.StreamEnrichedArticles, enriched.Fields()); err != nil {
		return fmt.Errorf("failed to publish enriched article %s: %w", raw.ID, err)
	}

	log.Info("Article enriched",
		"developer_focus", enriched.DeveloperFocus,
		"relevance_score", relevance)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
