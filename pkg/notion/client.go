// Package notion publishes composed digests as pages in a Notion database.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"

	"github.com/ravedigest/ravedigest/pkg/config"
	"github.com/ravedigest/ravedigest/pkg/models"
)

// Notion caps a single rich_text value at 2000 characters.
const maxSummaryRunes = 2000

// PageCreator is the page-creation surface the publisher drives. The real
// implementation is Client; tests substitute fakes.
type PageCreator interface {
	CreatePage(ctx context.Context, d models.Digest, blocks []notionapi.Block) (string, error)
}

// Client wraps the Notion API for a single target database.
type Client struct {
	api        *notionapi.Client
	databaseID notionapi.DatabaseID
}

func NewClient(cfg config.NotionSettings) *Client {
	return &Client{
		api:        notionapi.NewClient(notionapi.Token(cfg.APIKey)),
		databaseID: notionapi.DatabaseID(cfg.DatabaseID),
	}
}

// CreatePage creates a database page for the digest with the given body
// blocks and returns the page URL.
func (c *Client) CreatePage(ctx context.Context, d models.Digest, blocks []notionapi.Block) (string, error) {
	summary := d.Summary
	if runes := []rune(summary); len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes])
	}
	insertedAt := notionapi.Date(d.InsertedAt)

	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.databaseID,
		},
		Properties: notionapi.Properties{
			"Name":        notionapi.TitleProperty{Title: richText(d.Title, "")},
			"URL":         notionapi.RichTextProperty{RichText: richText(d.URL, "")},
			"Source":      notionapi.RichTextProperty{RichText: richText(d.Source, "")},
			"Summary":     notionapi.RichTextProperty{RichText: richText(summary, "")},
			"Inserted At": notionapi.DateProperty{Date: &notionapi.DateObject{Start: &insertedAt}},
		},
		Children: blocks,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create page for digest %s: %w", d.ID, err)
	}
	return page.URL, nil
}

// Health verifies the API token by looking up the bot user.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.User.Me(ctx); err != nil {
		return fmt.Errorf("notion API unreachable: %w", err)
	}
	return nil
}

// isPermanent reports whether the API rejected the request in a way no
// retry can fix. Rate limiting (429) stays retryable.
func isPermanent(err error) bool {
	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}
