// Package extract fetches article pages and reduces them to readable plain
// text for summarization.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// userAgent mirrors what the feeds' origin servers expect from a browser;
// several paywalled sites return stub pages to unknown agents.
const userAgent = "Mozilla/5.0"

// Extractor produces the readable text of an article page.
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Client fetches pages over HTTP and extracts their main content.
type Client struct {
	http *http.Client
}

// NewClient creates an extractor whose requests time out after the given
// duration. Redirects are followed.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Extract fetches the page at url and returns its main content as plain
// text, one trimmed line per block. An empty result is valid: some pages
// carry no extractable body.
func (c *Client) Extract(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", articleURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", articleURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, articleURL)
	}

	// resp.Request.URL is the post-redirect URL, so relative links inside
	// the document resolve against the page that actually served it.
	article, err := readability.FromReader(resp.Body, resp.Request.URL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content from %s: %w", articleURL, err)
	}
	return normalize(article.TextContent), nil
}

// normalize trims every line and drops the empty ones. Readability output
// keeps the source document's indentation and blank runs, which only waste
// model tokens downstream.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
