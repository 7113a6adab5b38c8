// Package digest renders ranked article sets into the Markdown document
// the publisher parses downstream. The section layout is a contract:
// notion.ParseBlocks splits on the numbered headings and reads the
// Source/Summary lines emitted here.
package digest

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/ravedigest/ravedigest/pkg/models"
)

var (
	// ErrNoArticles is returned when nothing qualifies for a digest.
	ErrNoArticles = errors.New("no articles available for digest")
	// ErrInvalidMarkdown flags rendered output that fails validation.
	ErrInvalidMarkdown = errors.New("invalid digest markdown")
)

// TemplateTitle is the document heading the digest renders under.
const TemplateTitle = "Today"

var digestTemplate = template.Must(template.New("digest").Parse(`# {{.Title}} — {{.Date}}
{{range .Articles}}
## {{.Number}}. [{{.Title}}]({{.URL}})
**Source:** {{.Source}}
{{- if .Categories}}
**Categories:** {{.Categories}}
{{- end}}
**Summary:** {{.Summary}}
{{end}}`))

var sectionPattern = regexp.MustCompile(`(?m)^## \d+\.`)

type articleView struct {
	Number     int
	Title      string
	URL        string
	Source     string
	Categories string
	Summary    string
}

type templateData struct {
	Title    string
	Date     string
	Articles []articleView
}

// Render produces the Markdown document for articles, numbered in input
// order. The caller owns the ranking; Render never reorders.
func Render(title string, now time.Time, articles []models.Article) (string, error) {
	if len(articles) == 0 {
		return "", ErrNoArticles
	}

	data := templateData{
		Title:    title,
		Date:     now.Format("2006-01-02"),
		Articles: make([]articleView, len(articles)),
	}
	for i, a := range articles {
		data.Articles[i] = articleView{
			Number:     i + 1,
			Title:      a.Title,
			URL:        a.URL,
			Source:     a.Source,
			Categories: strings.Join(a.Categories, ", "),
			Summary:    a.Summary,
		}
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

// Validate checks the rendered document for the structures the publisher
// relies on. A digest that fails validation is never stored or streamed.
func Validate(md string) error {
	if strings.TrimSpace(md) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMarkdown)
	}
	if !sectionPattern.MatchString(md) {
		return fmt.Errorf("%w: no article sections found", ErrInvalidMarkdown)
	}
	if strings.Contains(md, "[[") || strings.Contains(md, "]]") {
		return fmt.Errorf("%w: broken markdown link brackets", ErrInvalidMarkdown)
	}
	if !strings.Contains(md, "**Summary:**") {
		return fmt.Errorf("%w: no summaries detected", ErrInvalidMarkdown)
	}
	return nil
}
