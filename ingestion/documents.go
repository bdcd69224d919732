// Package ingestion turns stored articles into embedded, searchable
// passages. Fetching, extraction, and tagging happen upstream; this
// package consumes cleaned, tagged article text.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Document is an article as supplied by the document store. The chat
// core never mutates documents; it only derives passages from them.
type Document struct {
	ID           uuid.UUID  `json:"id"`
	SourceID     *uuid.UUID `json:"source_id,omitempty"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	ContentText  string     `json:"content_text"`
	CountryCodes []string   `json:"country_codes,omitempty"`
	TopicTags    []string   `json:"topic_tags,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// DocumentStore supplies documents awaiting chunking and records
// completion.
type DocumentStore interface {
	// PendingDocuments returns articles with content whose passages are
	// missing or stale relative to the current content version.
	PendingDocuments(ctx context.Context) ([]Document, error)
	// InsertDocuments upserts articles by URL. Changed content resets
	// the chunked marker so the article becomes pending again.
	InsertDocuments(ctx context.Context, docs []Document) (int, error)
	// MarkChunked records that the article's current content version
	// has a fully replaced passage set.
	MarkChunked(ctx context.Context, id uuid.UUID) error
}

// ContentHash fingerprints article content for change detection.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// PostgresDocumentStore reads and writes the articles table.
type PostgresDocumentStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentStore(pool *pgxpool.Pool) *PostgresDocumentStore {
	return &PostgresDocumentStore{pool: pool}
}

func (s *PostgresDocumentStore) PendingDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, title, url, COALESCE(content_text, ''), country_codes, topic_tags, published_at
		FROM articles
		WHERE content_text IS NOT NULL AND content_text <> '' AND chunked_at IS NULL
		ORDER BY fetched_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.SourceID, &doc.Title, &doc.URL, &doc.ContentText,
			&doc.CountryCodes, &doc.TopicTags, &doc.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresDocumentStore) InsertDocuments(ctx context.Context, docs []Document) (int, error) {
	inserted := 0
	for _, doc := range docs {
		id := doc.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		hash := ContentHash(doc.ContentText)

		tag, err := s.pool.Exec(ctx, `
			INSERT INTO articles (id, source_id, title, url, content_text, content_hash, country_codes, topic_tags, published_at, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (url) DO UPDATE SET
				title = EXCLUDED.title,
				content_text = EXCLUDED.content_text,
				country_codes = EXCLUDED.country_codes,
				topic_tags = EXCLUDED.topic_tags,
				published_at = EXCLUDED.published_at,
				fetched_at = NOW(),
				chunked_at = CASE
					WHEN articles.content_hash IS DISTINCT FROM EXCLUDED.content_hash THEN NULL
					ELSE articles.chunked_at
				END,
				content_hash = EXCLUDED.content_hash
		`, id, doc.SourceID, doc.Title, doc.URL, doc.ContentText, hash, doc.CountryCodes, doc.TopicTags, doc.PublishedAt)
		if err != nil {
			return inserted, fmt.Errorf("upsert article %s: %w", doc.URL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *PostgresDocumentStore) MarkChunked(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, "UPDATE articles SET chunked_at = NOW() WHERE id = $1", id); err != nil {
		return fmt.Errorf("mark article chunked: %w", err)
	}
	return nil
}

var _ DocumentStore = (*PostgresDocumentStore)(nil)
