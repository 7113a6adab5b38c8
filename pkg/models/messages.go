package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the wire schema version stamped on every stream message.
const SchemaVersion = "1.0"

// Stream names.
const (
	StreamRawArticles      = "raw_articles"
	StreamEnrichedArticles = "enriched_articles"
	StreamDigests          = "digest_stream"
)

// ValidationError reports a stream payload that does not match its schema.
// Handlers never ack messages that fail validation; the message stays
// pending for operator inspection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message field %q: %s", e.Field, e.Reason)
}

// RawArticle is the payload emitted by the collector on raw_articles.
type RawArticle struct {
	Version     string
	ID          uuid.UUID
	Title       string
	URL         string
	Summary     string
	Categories  []string
	PublishedAt *time.Time
	Source      string
}

// NewRawArticle builds the stream payload for a freshly collected article.
func NewRawArticle(a Article) RawArticle {
	return RawArticle{
		Version:     SchemaVersion,
		ID:          a.ID,
		Title:       a.Title,
		URL:         a.URL,
		Summary:     a.Summary,
		Categories:  a.Categories,
		PublishedAt: a.PublishedAt,
		Source:      a.Source,
	}
}

// Fields serializes the message for a stream append. All values are strings:
// absent optionals become "", timestamps RFC 3339.
func (r RawArticle) Fields() map[string]string {
	return map[string]string{
		"version":      r.Version,
		"id":           r.ID.String(),
		"title":        r.Title,
		"url":          r.URL,
		"summary":      r.Summary,
		"categories":   strings.Join(r.Categories, ","),
		"published_at": formatTime(r.PublishedAt),
		"source":       r.Source,
	}
}

// ParseRawArticle validates and decodes a raw_articles payload.
func ParseRawArticle(fields map[string]string) (RawArticle, error) {
	var r RawArticle

	if err := checkVersion(fields["version"]); err != nil {
		return r, err
	}
	id, err := parseID("id", fields["id"])
	if err != nil {
		return r, err
	}
	if fields["title"] == "" {
		return r, &ValidationError{Field: "title", Reason: "required"}
	}
	if fields["url"] == "" {
		return r, &ValidationError{Field: "url", Reason: "required"}
	}
	if fields["source"] == "" {
		return r, &ValidationError{Field: "source", Reason: "required"}
	}
	publishedAt, err := parseOptionalTime("published_at", fields["published_at"])
	if err != nil {
		return r, err
	}

	return RawArticle{
		Version:     fields["version"],
		ID:          id,
		Title:       fields["title"],
		URL:         fields["url"],
		Summary:     fields["summary"],
		Categories:  splitCategories(fields["categories"]),
		PublishedAt: publishedAt,
		Source:      fields["source"],
	}, nil
}

// EnrichedArticle is the payload emitted by the analyzer on
// enriched_articles. Summary holds the LLM-generated summary, replacing the
// feed-supplied one of the raw message.
type EnrichedArticle struct {
	RawArticle
	RelevanceScore float64
	DeveloperFocus bool
}

// Fields serializes the message for a stream append. Booleans are encoded
// as "1"/"0" per the bus serialization convention.
func (e EnrichedArticle) Fields() map[string]string {
	fields := e.RawArticle.Fields()
	fields["relevance_score"] = strconv.FormatFloat(e.RelevanceScore, 'f', -1, 64)
	fields["developer_focus"] = formatBool(e.DeveloperFocus)
	return fields
}

// Article converts the enriched payload to its persistent form for upsert.
func (e EnrichedArticle) Article() Article {
	score := e.RelevanceScore
	return Article{
		ID:             e.ID,
		Title:          e.Title,
		URL:            e.URL,
		Summary:        e.Summary,
		Categories:     e.Categories,
		PublishedAt:    e.PublishedAt,
		Source:         e.Source,
		RelevanceScore: &score,
		DeveloperFocus: e.DeveloperFocus,
	}
}

// ParseEnrichedArticle validates and decodes an enriched_articles payload.
func ParseEnrichedArticle(fields map[string]string) (EnrichedArticle, error) {
	var e EnrichedArticle

	raw, err := ParseRawArticle(fields)
	if err != nil {
		return e, err
	}

	score, err := strconv.ParseFloat(fields["relevance_score"], 64)
	if err != nil {
		return e, &ValidationError{Field: "relevance_score", Reason: "not a number"}
	}
	if score < 0 || score > 1 {
		return e, &ValidationError{Field: "relevance_score", Reason: "out of range [0,1]"}
	}

	// Lenient decode: accepts the canonical "1"/"0" as well as "true"/"false".
	devFocus, err := strconv.ParseBool(fields["developer_focus"])
	if err != nil {
		return e, &ValidationError{Field: "developer_focus", Reason: "not a boolean"}
	}

	return EnrichedArticle{
		RawArticle:     raw,
		RelevanceScore: score,
		DeveloperFocus: devFocus,
	}, nil
}

// DigestReady is the payload emitted by the composer on digest_stream.
type DigestReady struct {
	Version    string
	DigestID   uuid.UUID
	Title      string
	Summary    string
	URL        string
	Source     string
	InsertedAt time.Time
}

// NewDigestReady builds the stream payload for a freshly composed digest.
func NewDigestReady(d Digest) DigestReady {
	return DigestReady{
		Version:    SchemaVersion,
		DigestID:   d.ID,
		Title:      d.Title,
		Summary:    d.Summary,
		URL:        d.URL,
		Source:     d.Source,
		InsertedAt: d.InsertedAt,
	}
}

// Fields serializes the message for a stream append.
func (d DigestReady) Fields() map[string]string {
	return map[string]string{
		"version":     d.Version,
		"digest_id":   d.DigestID.String(),
		"title":       d.Title,
		"summary":     d.Summary,
		"url":         d.URL,
		"source":      d.Source,
		"inserted_at": d.InsertedAt.UTC().Format(time.RFC3339),
	}
}

// ParseDigestReady validates and decodes a digest_stream payload.
func ParseDigestReady(fields map[string]string) (DigestReady, error) {
	var d DigestReady

	if err := checkVersion(fields["version"]); err != nil {
		return d, err
	}
	id, err := parseID("digest_id", fields["digest_id"])
	if err != nil {
		return d, err
	}
	if fields["title"] == "" {
		return d, &ValidationError{Field: "title", Reason: "required"}
	}
	if fields["url"] == "" {
		return d, &ValidationError{Field: "url", Reason: "required"}
	}
	if fields["source"] == "" {
		return d, &ValidationError{Field: "source", Reason: "required"}
	}
	insertedAt, err := parseTime("inserted_at", fields["inserted_at"])
	if err != nil {
		return d, err
	}

	return DigestReady{
		Version:    fields["version"],
		DigestID:   id,
		Title:      fields["title"],
		Summary:    fields["summary"],
		URL:        fields["url"],
		Source:     fields["source"],
		InsertedAt: insertedAt,
	}, nil
}

func checkVersion(v string) error {
	if v == "" {
		return &ValidationError{Field: "version", Reason: "required"}
	}
	if v != SchemaVersion {
		return &ValidationError{Field: "version", Reason: fmt.Sprintf("unsupported version %q", v)}
	}
	return nil
}

func parseID(field, v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: field, Reason: "not a UUID"}
	}
	return id, nil
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, normalizeZulu(v))
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: "not an RFC 3339 timestamp"}
	}
	return t, nil
}

func parseOptionalTime(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(field, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// normalizeZulu tolerates producers that emit a bare offset-less timestamp.
func normalizeZulu(v string) string {
	if len(v) > 0 && !strings.ContainsAny(v[strings.LastIndexByte(v, 'T')+1:], "Z+-") {
		return v + "Z"
	}
	return v
}

func splitCategories(raw string) []string {
	if raw == "" {
		return nil
	}
	var categories []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	return categories
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
