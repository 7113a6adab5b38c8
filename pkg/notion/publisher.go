package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ravedigest/ravedigest/pkg/metrics"
	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/retry"
	"github.com/ravedigest/ravedigest/pkg/store"
	"github.com/ravedigest/ravedigest/pkg/worker"
)

// markerTTL bounds how long a digest is remembered as published. A digest
// redelivered after the marker expires would be published again; digests are
// composed daily, so a day is enough.
const markerTTL = 24 * time.Hour

// Store is the subset of the database layer the publisher reads from.
type Store interface {
	GetDigest(ctx context.Context, id uuid.UUID) (models.Digest, error)
}

// Bus is the subset of the stream client the publisher uses for the
// published-digest markers.
type Bus interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
}

// Publisher consumes digest-ready events and creates one Notion page per
// digest, at most once.
type Publisher struct {
	store   Store
	bus     Bus
	pages   PageCreator
	policy  retry.Policy
	breaker *retry.CircuitBreaker
	metrics *metrics.Metrics
}

func NewPublisher(st Store, b Bus, pages PageCreator, policy retry.Policy, breaker *retry.CircuitBreaker, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:   st,
		bus:     b,
		pages:   pages,
		policy:  policy,
		breaker: breaker,
		metrics: m,
	}
}

func (p *Publisher) HandleMessage(ctx context.Context, msg worker.Message) error {
	event, err := models.ParseDigestReady(msg.Fields)
	if err != nil {
		return err
	}
	log := slog.With("digest_id", event.DigestID)

	_, published, err := p.bus.GetString(ctx, markerKey(event.DigestID))
	if err != nil {
		return fmt.Errorf("failed to check publish marker for digest %s: %w", event.DigestID, err)
	}
	if published {
		log.Info("Digest already published, skipping")
		return worker.ErrSkip
	}

	d, err := p.store.GetDigest(ctx, event.DigestID)
	if errors.Is(err, store.ErrNotFound) {
		// The row is gone; retrying cannot bring it back, so the message
		// is acked rather than left pending forever.
		log.Error("Digest missing from store, nothing to publish")
		return worker.ErrSkip
	}
	if err != nil {
		return fmt.Errorf("failed to load digest %s: %w", event.DigestID, err)
	}

	blocks := ParseBlocks(d.Summary)

	var pageURL string
	err = p.breaker.Call(func() error {
		return retry.Do(ctx, p.policy, log, "create notion page", func(ctx context.Context) error {
			url, createErr := p.pages.CreatePage(ctx, d, blocks)
			if createErr != nil {
				if isPermanent(createErr) {
					return retry.Permanent(createErr)
				}
				return createErr
			}
			pageURL = url
			return nil
		})
	})
	if err != nil {
		p.count(metrics.ResultError)
		return err
	}

	if err := p.bus.SetString(ctx, markerKey(event.DigestID), "1", markerTTL); err != nil {
		// The page already exists; failing the message now would publish it
		// again on redelivery.
		log.Warn("Failed to set publish marker", "error", err)
	}

	p.count(metrics.ResultOK)
	log.Info("Digest published to Notion", "page_url", pageURL)
	return nil
}

func (p *Publisher) count(result string) {
	if p.metrics != nil {
		p.metrics.DigestPublished(result)
	}
}

func markerKey(id uuid.UUID) string {
	return "digest_published:" + id.String()
}
