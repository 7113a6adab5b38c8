// Package models defines the persistent domain types and the stream message
// schemas that flow between pipeline stages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is a persisted feed entry, optionally enriched by the analyzer.
//
// URL uniqueness is enforced by the store. The enrichment fields (Summary,
// RelevanceScore, DeveloperFocus) are written at most once per successful
// analyzer pass; writes may overwrite earlier values but never clear them.
type Article struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	Summary        string     `json:"summary,omitempty"`
	Categories     []string   `json:"categories"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	Source         string     `json:"source"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
	DeveloperFocus bool       `json:"developer_focus"`
	InsertedAt     time.Time  `json:"inserted_at"`
}

// Digest is a rendered Markdown document summarizing a ranked set of
// enriched articles. Digests are immutable after insert.
type Digest struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Summary    string    `json:"summary"`
	Source     string    `json:"source"`
	InsertedAt time.Time `json:"inserted_at"`
}
