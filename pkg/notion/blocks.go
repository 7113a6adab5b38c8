package notion

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/jomei/notionapi"
)

var (
	articleSplit   = regexp.MustCompile(`\n## \d+\.\s`)
	linkPattern    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	sourcePattern  = regexp.MustCompile(`\*\*Source:\*\*\s*(.+)`)
	summaryPattern = regexp.MustCompile(`(?s)\*\*Summary:\*\*\s*(.+)`)
)

// ParseBlocks converts a digest document into the page body: per article a
// linked title, the source, the summary, and a read-more line, closed by a
// divider. Sections without a recognizable title link are dropped.
func ParseBlocks(md string) []notionapi.Block {
	chunks := articleSplit.Split(md, -1)
	if len(chunks) > 0 {
		// The first chunk is the document header, not an article.
		chunks = chunks[1:]
	}

	var blocks []notionapi.Block
	for _, raw := range chunks {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		link := linkPattern.FindStringSubmatch(raw)
		if link == nil {
			slog.Warn("Skipping digest section without a title link")
			continue
		}
		title, url := link[1], link[2]

		source := "Unknown"
		if m := sourcePattern.FindStringSubmatch(raw); m != nil {
			source = strings.TrimSpace(m[1])
		}
		var summary string
		if m := summaryPattern.FindStringSubmatch(raw); m != nil {
			summary = strings.TrimSpace(m[1])
		}

		blocks = append(blocks,
			paragraph("🔹 "+title, url),
			paragraph("🌐 Source: "+source, ""),
			paragraph("📝 Summary: "+summary, ""),
			paragraph("🔗 Read More", url),
			notionapi.DividerBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeDivider,
				},
			},
		)
	}
	return blocks
}

func paragraph(text, link string) notionapi.ParagraphBlock {
	return notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: richText(text, link)},
	}
}

func richText(content, link string) []notionapi.RichText {
	rt := notionapi.RichText{Text: &notionapi.Text{Content: content}}
	if link != "" {
		rt.Text.Link = &notionapi.Link{Url: link}
	}
	return []notionapi.RichText{rt}
}
