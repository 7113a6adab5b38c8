// Package feed fetches the configured RSS sources and normalizes their
// entries into articles.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/models"
)

// Parser turns one configured feed into articles. Implemented by Fetcher;
// collector tests substitute stubs.
type Parser interface {
	Parse(ctx context.Context, feed config.Feed) ([]models.Article, error)
}

// Fetcher retrieves feeds over HTTP and parses them with gofeed.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher creates a fetcher whose HTTP requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: timeout}
	return &Fetcher{parser: p}
}

// Parse fetches the feed and converts each entry to an article. Entries
// missing a title or link are logged and skipped; a bad timestamp only
// leaves PublishedAt unset.
func (f *Fetcher) Parse(ctx context.Context, feed config.Feed) ([]models.Article, error) {
	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.Source, err)
	}

	articles := make([]models.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		article, err := entryToArticle(item, feed.Source)
		if err != nil {
			slog.Warn("Skipping feed entry", "feed", feed.Source, "error", err)
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

func entryToArticle(item *gofeed.Item, source string) (models.Article, error) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" {
		return models.Article{}, fmt.Errorf("entry has no title")
	}
	if link == "" {
		return models.Article{}, fmt.Errorf("entry %q has no link", title)
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return models.Article{
		ID:          uuid.New(),
		Title:       title,
		URL:         link,
		Summary:     summary,
		Categories:  item.Categories,
		PublishedAt: entryTime(item),
		Source:      source,
	}, nil
}

// entryTime resolves the entry timestamp: gofeed's parsed times first, then
// the raw date strings some feeds leave unparsed.
func entryTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if t, ok := parseTimestamp(raw); ok {
			return &t
		}
	}
	return nil
}

// parseTimestamp tries RFC 3339 ("Z" and offset forms both accepted), then
// the RFC 1123 shapes RSS 2.0 feeds emit.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
