package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the pgvector extension and the sources,
// articles, and article_chunks tables. The chunk table carries the
// filter attributes denormalized from its article so search never joins
// back for filtering; the ivfflat index accelerates cosine search.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS sources (
			id UUID PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			feed_url TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			id UUID PRIMARY KEY,
			source_id UUID REFERENCES sources(id),
			title TEXT NOT NULL,
			url TEXT UNIQUE NOT NULL,
			content_text TEXT,
			content_hash TEXT,
			country_codes TEXT[],
			topic_tags TEXT[],
			published_at TIMESTAMPTZ,
			fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			chunked_at TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS article_chunks (
			id UUID PRIMARY KEY,
			article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			text TEXT NOT NULL,
			embedding VECTOR(%d),
			country_codes TEXT[],
			topic_tags TEXT[],
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(article_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_article_chunks_article ON article_chunks(article_id)",
		"CREATE INDEX IF NOT EXISTS idx_article_chunks_published ON article_chunks(published_at)",
		"CREATE INDEX IF NOT EXISTS idx_article_chunks_embedding ON article_chunks USING ivfflat (embedding vector_cosine_ops)",
		"CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
