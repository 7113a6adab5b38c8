// Package store persists articles and digests in PostgreSQL.
//
// Writes are the effect side of at-least-once stream delivery, so every
// operation is idempotent at the row level: collector inserts collide on
// the unique URL, analyzer writes upsert on the primary key, and digest
// URLs are unique.
package store

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ravedigest/ravedigest/pkg/models"
)

var (
	// ErrDuplicateURL is returned when an insert collides with a unique
	// URL constraint.
	ErrDuplicateURL = errors.New("url already stored")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
)

// Store runs article and digest queries on the shared pool.
type Store struct {
	db *stdsql.DB
}

func New(db *stdsql.DB) *Store {
	return &Store{db: db}
}

// InsertArticle stores a freshly collected article. A URL already present
// returns ErrDuplicateURL.
func (s *Store) InsertArticle(ctx context.Context, a models.Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rave_articles (id, title, url, summary, categories, published_at, source)
		VALUES ($1, $2, $3, NULLIF($4, ''), string_to_array($5, ','), $6, $7)`,
		a.ID, a.Title, a.URL, a.Summary, strings.Join(a.Categories, ","), a.PublishedAt, a.Source)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}
	return nil
}

// UpsertEnrichment stores analyzer output. A new id inserts the full
// record; an existing one overwrites summary, relevance score, and
// developer focus, leaving collection-time fields untouched.
func (s *Store) UpsertEnrichment(ctx context.Context, a models.Article) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rave_articles
			(id, title, url, summary, categories, published_at, source, relevance_score, developer_focus)
		VALUES ($1, $2, $3, NULLIF($4, ''), string_to_array($5, ','), $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			relevance_score = EXCLUDED.relevance_score,
			developer_focus = EXCLUDED.developer_focus`,
		a.ID, a.Title, a.URL, a.Summary, strings.Join(a.Categories, ","),
		a.PublishedAt, a.Source, a.RelevanceScore, a.DeveloperFocus)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment: %w", err)
	}
	return nil
}

// GetArticle loads one article by id.
func (s *Store) GetArticle(ctx context.Context, id uuid.UUID) (models.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, url, COALESCE(summary, ''), array_to_string(categories, ','),
		       published_at, source, relevance_score, developer_focus, inserted_at
		FROM rave_articles
		WHERE id = $1`, id)

	a, err := scanArticle(row)
	if errors.Is(err, stdsql.ErrNoRows) {
		return models.Article{}, ErrNotFound
	}
	if err != nil {
		return models.Article{}, fmt.Errorf("failed to load article: %w", err)
	}
	return a, nil
}

// TopDeveloperArticles returns developer-focused articles ranked by
// relevance score, best first. Unscored rows sort last.
func (s *Store) TopDeveloperArticles(ctx context.Context, limit int) ([]models.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, url, COALESCE(summary, ''), array_to_string(categories, ','),
		       published_at, source, relevance_score, developer_focus, inserted_at
		FROM rave_articles
		WHERE developer_focus
		ORDER BY relevance_score DESC NULLS LAST
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}

// InsertDigest stores a composed digest and returns it with the
// database-assigned insertion time.
func (s *Store) InsertDigest(ctx context.Context, d models.Digest) (models.Digest, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO digests (id, title, url, summary, source)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING inserted_at`,
		d.ID, d.Title, d.URL, d.Summary, d.Source).Scan(&d.InsertedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Digest{}, ErrDuplicateURL
		}
		return models.Digest{}, fmt.Errorf("failed to insert digest: %w", err)
	}
	return d, nil
}

// GetDigest loads one digest by id.
func (s *Store) GetDigest(ctx context.Context, id uuid.UUID) (models.Digest, error) {
	var d models.Digest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, url, COALESCE(summary, ''), source, inserted_at
		FROM digests
		WHERE id = $1`, id).
		Scan(&d.ID, &d.Title, &d.URL, &d.Summary, &d.Source, &d.InsertedAt)
	if errors.Is(err, stdsql.ErrNoRows) {
		return models.Digest{}, ErrNotFound
	}
	if err != nil {
		return models.Digest{}, fmt.Errorf("failed to load digest: %w", err)
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (models.Article, error) {
	var a models.Article
	var categories string
	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.Summary, &categories,
		&a.PublishedAt, &a.Source, &a.RelevanceScore, &a.DeveloperFocus, &a.InsertedAt)
	if err != nil {
		return models.Article{}, err
	}
	if categories != "" {
		a.Categories = strings.Split(categories, ",")
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
