// Package composer assembles the current top developer-focused articles
// into a digest document and announces it on digest_stream.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ravedigest/ravedigest/pkg/digest"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/worker"
)

const (
	digestTitle  = "Today's Digest"
	digestSource = "AI-Tech"
)

// Store is the subset of the article store the composer uses.
type Store interface {
	TopDeveloperArticles(ctx context.Context, limit int) ([]models.Article, error)
	InsertDigest(ctx context.Context, d models.Digest) (models.Digest, error)
}

// Bus is the subset of the message bus the composer publishes on.
type Bus interface {
	Append(ctx context.Context, stream string, fields map[string]string) (string, error)
}

// Service composes digests, either per enriched message or on demand over
// HTTP.
type Service struct {
	store  Store
	bus    Bus
	limit  int
	policy retry.Policy
}

func NewService(st Store, b Bus, limit int, policy retry.Policy) *Service {
	return &Service{store: st, bus: b, limit: limit, policy: policy}
}

// HandleMessage runs a compose pass for each enriched article. An empty
// candidate set is a skip, not a failure; the message still acks.
func (s *Service) HandleMessage(ctx context.Context, msg worker.Message) error {
	if _, err := models.ParseEnrichedArticle(msg.Fields); err != nil {
		return err
	}

	_, err := s.Compose(ctx)
	if errors.Is(err, digest.ErrNoArticles) {
		slog.Info("No digest composed, no eligible articles")
		return worker.ErrSkip
	}
	return err
}

// Compose queries the ranked developer articles, renders and validates the
// Markdown, persists the digest, and appends the digest-ready event. A
// validation failure leaves no row and no stream entry behind.
func (s *Service) Compose(ctx context.Context) (models.Digest, error) {
	var articles []models.Article
	err := retry.Do(ctx, s.policy, slog.Default(), "query top articles", func(ctx context.Context) error {
		var qErr error
		articles, qErr = s.store.TopDeveloperArticles(ctx, s.limit)
		return qErr
	})
	if err != nil {
		return models.Digest{}, err
	}
	if len(articles) == 0 {
		return models.Digest{}, digest.ErrNoArticles
	}
	slog.Info("Composing digest", "articles", len(articles))

	md, err := digest.Render(digest.TemplateTitle, time.Now(), articles)
	if err != nil {
		return models.Digest{}, err
	}
	if err := digest.Validate(md); err != nil {
		return models.Digest{}, err
	}

	id := uuid.New()
	d := models.Digest{
		ID:      id,
		Title:   digestTitle,
		URL:     fmt.Sprintf("/digests/%s", id),
		Summary: md,
		Source:  digestSource,
	}
	err = retry.Do(ctx, s.policy, slog.Default(), "insert digest", func(ctx context.Context) error {
		var insErr error
		d, insErr = s.store.InsertDigest(ctx, d)
		return insErr
	})
	if err != nil {
		return models.Digest{}, err
	}

	err = retry.Do(ctx, s.policy, slog.Default(), "publish digest ready", func(ctx context.Context) error {
		_, appErr := s.bus.Append(ctx, models.StreamDigests, models.NewDigestReady(d).Fields())
		return appErr
	})
	if err != nil {
		// The row exists but was never streamed; the publisher will only
		// see it if a later compose or a manual append replays it.
		return models.Digest{}, err
	}

	slog.Info("Digest composed", "digest_id", d.ID)
	return d, nil
}
