package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/models"
	"github.com/ravedigest/ravedigest/pkg/store"
	"github.com/ravedigest/ravedigest/test/util"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(util.SetupTestDatabase(t))
}

func sampleArticle(title, articleURL string) models.Article {
	published := time.Date(2025, 8, 20, 9, 30, 0, 0, time.UTC)
	return models.Article{
		ID:          uuid.New(),
		Title:       title,
		URL:         articleURL,
		Summary:     "A short feed summary.",
		Categories:  []string{"ai", "developers"},
		PublishedAt: &published,
		Source:      "TechCrunch AI",
	}
}

func TestInsertArticleAndDuplicate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := sampleArticle("First", "https://example.com/first")
	require.NoError(t, s.InsertArticle(ctx, a))

	dup := sampleArticle("Other title, same URL", "https://example.com/first")
	assert.ErrorIs(t, s.InsertArticle(ctx, dup), store.ErrDuplicateURL)

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.Equal(t, a.URL, got.URL)
	assert.Equal(t, a.Categories, got.Categories)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(*a.PublishedAt))
	assert.False(t, got.DeveloperFocus)
	assert.Nil(t, got.RelevanceScore)
	assert.False(t, got.InsertedAt.IsZero())
}

func TestInsertArticleWithEmptyOptionals(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := models.Article{ID: uuid.New(), Title: "Bare", URL: "https://example.com/bare", Source: "Wired AI"}
	require.NoError(t, s.InsertArticle(ctx, a))

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Summary)
	assert.Empty(t, got.Categories)
	assert.Nil(t, got.PublishedAt)
}

func TestUpsertEnrichmentUpdatesExistingRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a := sampleArticle("Raw", "https://example.com/raw")
	require.NoError(t, s.InsertArticle(ctx, a))

	score := 0.83
	enriched := a
	enriched.Summary = "LLM summary."
	enriched.RelevanceScore = &score
	enriched.DeveloperFocus = true
	require.NoError(t, s.UpsertEnrichment(ctx, enriched))

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "LLM summary.", got.Summary)
	require.NotNil(t, got.RelevanceScore)
	assert.InDelta(t, 0.83, *got.RelevanceScore, 1e-9)
	assert.True(t, got.DeveloperFocus)
	assert.Equal(t, "Raw", got.Title, "collection-time fields survive the upsert")
}

func TestUpsertEnrichmentInsertsMissingRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	score := 0.5
	a := sampleArticle("Straight to enrichment", "https://example.com/direct")
	a.RelevanceScore = &score
	a.DeveloperFocus = true
	require.NoError(t, s.UpsertEnrichment(ctx, a))

	got, err := s.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.True(t, got.DeveloperFocus)
}

func TestUpsertEnrichmentIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	score := 0.7
	a := sampleArticle("Replayed", "https://example.com/replayed")
	a.RelevanceScore = &score
	a.DeveloperFocus = true

	require.NoError(t, s.UpsertEnrichment(ctx, a))
	require.NoError(t, s.UpsertEnrichment(ctx, a))

	top, err := s.TopDeveloperArticles(ctx, 20)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestTopDeveloperArticlesRanking(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	mk := func(suffix string, score *float64, focus bool) models.Article {
		a := sampleArticle("Article "+suffix, "https://example.com/"+suffix)
		a.RelevanceScore = score
		a.DeveloperFocus = focus
		return a
	}
	low, high := 0.42, 0.97
	require.NoError(t, s.UpsertEnrichment(ctx, mk("low", &low, true)))
	require.NoError(t, s.UpsertEnrichment(ctx, mk("high", &high, true)))
	require.NoError(t, s.UpsertEnrichment(ctx, mk("unscored", nil, true)))
	require.NoError(t, s.UpsertEnrichment(ctx, mk("offtopic", &high, false)))

	top, err := s.TopDeveloperArticles(ctx, 20)
	require.NoError(t, err)
	require.Len(t, top, 3, "non developer-focused articles are excluded")
	assert.Equal(t, "https://example.com/high", top[0].URL)
	assert.Equal(t, "https://example.com/low", top[1].URL)
	assert.Equal(t, "https://example.com/unscored", top[2].URL, "unscored rows sort last")

	top, err = s.TopDeveloperArticles(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestDigestRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id := uuid.New()
	d := models.Digest{
		ID:      id,
		Title:   "Today",
		URL:     "/digests/" + id.String(),
		Summary: "# Developer Digest\n",
		Source:  "RaveDigest",
	}
	stored, err := s.InsertDigest(ctx, d)
	require.NoError(t, err)
	assert.False(t, stored.InsertedAt.IsZero(), "InsertDigest returns the database insertion time")

	got, err := s.GetDigest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, d.Title, got.Title)
	assert.Equal(t, d.Summary, got.Summary)
	assert.Equal(t, d.Source, got.Source)

	_, err = s.InsertDigest(ctx, models.Digest{ID: uuid.New(), Title: "x", URL: d.URL, Source: "RaveDigest"})
	assert.ErrorIs(t, err, store.ErrDuplicateURL)

	_, err = s.GetDigest(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
