package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorStore persists passage vectors and serves filtered similarity
// search. UpsertPassages replaces the whole passage set of an article
// atomically, so readers never observe a partially replaced set.
type VectorStore interface {
	UpsertPassages(ctx context.Context, articleID uuid.UUID, passages []Passage) error
	Search(ctx context.Context, vector []float32, filters Filters, k int) ([]SearchResult, error)
}

// PostgresVectorStore stores passages in the article_chunks table with
// a pgvector column and ivfflat cosine index.
type PostgresVectorStore struct {
	pool *pgxpool.Pool
}

func NewPostgresVectorStore(pool *pgxpool.Pool) *PostgresVectorStore {
	return &PostgresVectorStore{pool: pool}
}

// UpsertPassages deletes the article's existing passages and inserts
// the new set in one transaction.
func (s *PostgresVectorStore) UpsertPassages(ctx context.Context, articleID uuid.UUID, passages []Passage) (err error) {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "DELETE FROM article_chunks WHERE article_id = $1", articleID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for _, p := range passages {
		var embedding any
		if p.Embedding != nil {
			embedding = pgvector.NewVector(p.Embedding)
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO article_chunks (id, article_id, chunk_index, text, embedding, country_codes, topic_tags, published_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		`, p.ID, articleID, p.ChunkIndex, p.Text, embedding, p.CountryCodes, p.TopicTags, p.PublishedAt); err != nil {
			return fmt.Errorf("insert chunk %d: %w", p.ChunkIndex, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Search runs cosine-distance nearest-neighbor search with the filter
// pushed down into the WHERE clause, so approximate indexing never
// ranks candidates the filter would exclude. Results come back ordered
// by descending similarity with chunk id as tiebreak.
func (s *PostgresVectorStore) Search(ctx context.Context, vector []float32, filters Filters, k int) ([]SearchResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k < 1 {
		k = 1
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := k * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	args := []any{pgvector.NewVector(vector)}
	where := "ac.embedding IS NOT NULL"
	next := 2

	if len(filters.Countries) > 0 {
		where += fmt.Sprintf(" AND ac.country_codes && $%d", next)
		args = append(args, filters.Countries)
		next++
	}
	if len(filters.Topics) > 0 {
		where += fmt.Sprintf(" AND ac.topic_tags && $%d", next)
		args = append(args, filters.Topics)
		next++
	}
	if filters.DateFrom != nil {
		where += fmt.Sprintf(" AND ac.published_at >= $%d", next)
		args = append(args, *filters.DateFrom)
		next++
	}
	if filters.DateTo != nil {
		where += fmt.Sprintf(" AND ac.published_at < $%d", next)
		args = append(args, *filters.DateTo)
		next++
	}

	query := fmt.Sprintf(`
        SELECT
            ac.id,
            ac.text,
            ac.chunk_index,
            ac.article_id,
            a.title,
            a.url,
            ac.published_at,
            (ac.embedding <=> $1::vector) AS distance
        FROM article_chunks ac
        JOIN articles a ON a.id = ac.article_id
        WHERE %s
        ORDER BY distance, ac.id
        LIMIT $%d
    `, where, next)
	args = append(args, k)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, k)
	for rows.Next() {
		var item SearchResult
		var distance float64
		if scanErr := rows.Scan(
			&item.ChunkID, &item.ChunkText, &item.ChunkIndex, &item.ArticleID,
			&item.ArticleTitle, &item.ArticleURL, &item.PublishedAt, &distance,
		); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		item.Similarity = clampSimilarity(1 - distance)
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func clampSimilarity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ VectorStore = (*PostgresVectorStore)(nil)
