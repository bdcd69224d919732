package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evergrid/newsrag/chat"
	"github.com/evergrid/newsrag/chunker"
	"github.com/evergrid/newsrag/embeddings"
)

// Stats summarizes one ingestion pass. Failures are per-document; a
// failed document never aborts the run and keeps its previous passage
// set.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Chunks    int `json:"chunks"`
}

// Service chunks, embeds, and upserts passages for pending documents.
type Service struct {
	docs     DocumentStore
	vectors  chat.VectorStore
	embedder embeddings.Embedder
	chunker  *chunker.Chunker
	logger   zerolog.Logger
}

func NewService(docs DocumentStore, vectors chat.VectorStore, embedder embeddings.Embedder, ch *chunker.Chunker, logger zerolog.Logger) *Service {
	if ch == nil {
		ch = chunker.New(chunker.DefaultMinSize, chunker.DefaultMaxSize, chunker.DefaultOverlap)
	}
	return &Service{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		chunker:  ch,
		logger:   logger,
	}
}

// ProcessAll chunks and embeds every pending document. Per-document
// errors are counted and logged but do not interrupt the pass.
func (s *Service) ProcessAll(ctx context.Context) (Stats, error) {
	if s.embedder == nil {
		return Stats{}, fmt.Errorf("embedder not configured")
	}

	docs, err := s.docs.PendingDocuments(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list pending documents: %w", err)
	}

	var stats Stats
	for _, doc := range docs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		chunks, err := s.ProcessDocument(ctx, doc)
		if err != nil {
			stats.Failed++
			s.logger.Error().Err(err).Str("url", doc.URL).Msg("document ingestion failed")
			continue
		}
		if chunks == 0 {
			stats.Skipped++
			continue
		}
		stats.Processed++
		stats.Chunks += chunks
	}

	s.logger.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("chunks", stats.Chunks).
		Msg("ingestion pass complete")

	return stats, nil
}

// ProcessDocument replaces the document's passage set with freshly
// chunked and embedded passages. The replacement is atomic at the
// vector store: on any failure before the upsert commits, the old
// passage set stays intact.
func (s *Service) ProcessDocument(ctx context.Context, doc Document) (int, error) {
	chunks := s.chunker.Chunk(doc.ContentText)
	if len(chunks) == 0 {
		// A previous version may have left passages behind; the latest
		// content has none, so the stored set must become empty too.
		if err := s.vectors.UpsertPassages(ctx, doc.ID, nil); err != nil {
			return 0, fmt.Errorf("clear passages: %w", err)
		}
		if err := s.docs.MarkChunked(ctx, doc.ID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}

	passages := make([]chat.Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = chat.Passage{
			ID:           uuid.New(),
			ChunkIndex:   c.Index,
			Text:         c.Text,
			Embedding:    vectors[i],
			CountryCodes: doc.CountryCodes,
			TopicTags:    doc.TopicTags,
			PublishedAt:  doc.PublishedAt,
		}
	}

	if err := s.vectors.UpsertPassages(ctx, doc.ID, passages); err != nil {
		return 0, fmt.Errorf("upsert passages: %w", err)
	}
	if err := s.docs.MarkChunked(ctx, doc.ID); err != nil {
		return 0, err
	}

	s.logger.Debug().Str("url", doc.URL).Int("chunks", len(passages)).Msg("document ingested")
	return len(passages), nil
}
