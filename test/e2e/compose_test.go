package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/bus"
	"github.com/ravedigest/ravedigest/pkg/composer"
	"github.com/ravedigest/ravedigest/pkg/models"
)

func TestComposeEmptyDatabaseNoContent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p := NewPipeline(t)
	svc := composer.NewService(p.Store, p.Bus, p.Cfg.MaxArticlesPerDigest, fastPolicy())

	engine := gin.New()
	svc.Register(engine)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/compose", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, p.CountRows("digests"))
	_, err := p.Bus.Status(context.Background(), models.StreamDigests, p.Cfg.Group("notion"))
	assert.ErrorIs(t, err, bus.ErrNoStream)
}

func TestComposeInvalidMarkdownLeavesMessagePending(t *testing.T) {
	p := NewPipeline(t)
	ctx := context.Background()

	// Stray double brackets in a stored title render into markdown the
	// validator rejects.
	score := 0.9
	corrupted := seedArticle()
	corrupted.Title = "AI release notes [[draft]]"
	corrupted.Summary = "SUM"
	corrupted.RelevanceScore = &score
	corrupted.DeveloperFocus = true
	require.NoError(t, p.Store.UpsertEnrichment(ctx, corrupted))

	enriched := models.EnrichedArticle{
		RawArticle:     models.NewRawArticle(corrupted),
		RelevanceScore: score,
		DeveloperFocus: true,
	}
	_, err := p.Bus.Append(ctx, models.StreamEnrichedArticles, enriched.Fields())
	require.NoError(t, err)

	w := p.ComposerWorker()
	w.Start(ctx)
	group := p.Cfg.Group("composer")
	require.Eventually(t, func() bool {
		status, err := p.Bus.Status(ctx, models.StreamEnrichedArticles, group)
		return err == nil && status.Pending == 1
	}, 10*time.Second, 20*time.Millisecond, "message never delivered")
	w.Stop()

	// Nothing persisted, nothing announced, and the message is still
	// pending for the next delivery attempt.
	assert.Zero(t, p.CountRows("digests"))
	_, err = p.Bus.Status(ctx, models.StreamDigests, p.Cfg.Group("notion"))
	assert.ErrorIs(t, err, bus.ErrNoStream)
	assert.EqualValues(t, 1, p.PendingCount(models.StreamEnrichedArticles, "composer"))
}
