package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evergrid/newsrag/chat"
	"github.com/evergrid/newsrag/chunker"
	"github.com/evergrid/newsrag/embeddings"
)

type memoryDocumentStore struct {
	pending []Document
	chunked map[uuid.UUID]bool
}

func newMemoryDocumentStore(docs ...Document) *memoryDocumentStore {
	return &memoryDocumentStore{pending: docs, chunked: make(map[uuid.UUID]bool)}
}

func (m *memoryDocumentStore) PendingDocuments(context.Context) ([]Document, error) {
	return m.pending, nil
}

func (m *memoryDocumentStore) InsertDocuments(_ context.Context, docs []Document) (int, error) {
	m.pending = append(m.pending, docs...)
	return len(docs), nil
}

func (m *memoryDocumentStore) MarkChunked(_ context.Context, id uuid.UUID) error {
	m.chunked[id] = true
	return nil
}

var _ DocumentStore = (*memoryDocumentStore)(nil)

// flakyEmbedder fails any batch containing the poison marker.
type flakyEmbedder struct {
	inner embeddings.Embedder
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, "POISON") {
			return nil, errors.New("provider timeout")
		}
	}
	return f.inner.Embed(ctx, texts)
}

func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }

func testDocument(title, body string) Document {
	published := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	return Document{
		ID:           uuid.New(),
		Title:        title,
		URL:          "https://example.com/" + strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		ContentText:  body,
		CountryCodes: []string{"US"},
		TopicTags:    []string{"renewables_solar"},
		PublishedAt:  &published,
	}
}

func TestProcessAllEmbedsPendingDocuments(t *testing.T) {
	doc := testDocument("Solar ramp", strings.Repeat("Projects keep clearing the interconnection queue. ", 60))
	docs := newMemoryDocumentStore(doc)
	vectors := chat.NewMemoryVectorStore()

	svc := NewService(docs, vectors, embeddings.NewFakeEmbedder(32), chunker.New(100, 400, 50), zerolog.Nop())

	stats, err := svc.ProcessAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Greater(t, stats.Chunks, 1)
	assert.Equal(t, stats.Chunks, vectors.PassageCount(doc.ID))
	assert.True(t, docs.chunked[doc.ID])
}

func TestProcessAllSkipsEmptyDocuments(t *testing.T) {
	doc := testDocument("Empty", "   \n ")
	docs := newMemoryDocumentStore(doc)

	svc := NewService(docs, chat.NewMemoryVectorStore(), embeddings.NewFakeEmbedder(16), nil, zerolog.Nop())

	stats, err := svc.ProcessAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Processed)
	assert.True(t, docs.chunked[doc.ID], "empty document is marked done, not retried forever")
}

func TestProcessAllIsolatesPerDocumentFailures(t *testing.T) {
	good := testDocument("Good article", strings.Repeat("Healthy sentence about storage economics. ", 40))
	bad := testDocument("Bad article", "POISON "+strings.Repeat("text ", 50))
	docs := newMemoryDocumentStore(bad, good)
	vectors := chat.NewMemoryVectorStore()

	svc := NewService(docs, vectors, &flakyEmbedder{inner: embeddings.NewFakeEmbedder(16)}, chunker.New(50, 150, 20), zerolog.Nop())

	stats, err := svc.ProcessAll(context.Background())
	require.NoError(t, err, "one failing document must not abort the run")

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, vectors.PassageCount(bad.ID), "failed document gets no partial passages")
	assert.Greater(t, vectors.PassageCount(good.ID), 0)
	assert.False(t, docs.chunked[bad.ID])
}

func TestProcessDocumentReplacesStalePassages(t *testing.T) {
	doc := testDocument("Evolving story", strings.Repeat("First version of the article body. ", 40))
	vectors := chat.NewMemoryVectorStore()
	svc := NewService(newMemoryDocumentStore(), vectors, embeddings.NewFakeEmbedder(16), chunker.New(50, 150, 20), zerolog.Nop())

	n1, err := svc.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)
	require.Greater(t, n1, 1)

	doc.ContentText = "Much shorter second version."
	n2, err := svc.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, n2)
	assert.Equal(t, 1, vectors.PassageCount(doc.ID), "no stale passages from the prior version remain")
}

func TestProcessDocumentClearsPassagesWhenContentEmptied(t *testing.T) {
	doc := testDocument("Retracted story", strings.Repeat("Original body before retraction. ", 40))
	vectors := chat.NewMemoryVectorStore()
	docs := newMemoryDocumentStore()
	svc := NewService(docs, vectors, embeddings.NewFakeEmbedder(16), chunker.New(50, 150, 20), zerolog.Nop())

	n, err := svc.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)
	require.Greater(t, n, 1)
	require.Greater(t, vectors.PassageCount(doc.ID), 0)

	// The latest fetch carries no usable text; nothing from the prior
	// version may remain queryable.
	doc.ContentText = "   \n\t "
	n, err = svc.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, vectors.PassageCount(doc.ID))
	assert.True(t, docs.chunked[doc.ID])

	query, err := embeddings.NewFakeEmbedder(16).Embed(context.Background(), []string{"retraction"})
	require.NoError(t, err)
	results, err := vectors.Search(context.Background(), query[0], chat.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessDocumentDenormalizesFilterAttributes(t *testing.T) {
	doc := testDocument("Tagged article", strings.Repeat("Grid connection news. ", 30))
	vectors := chat.NewMemoryVectorStore()
	svc := NewService(newMemoryDocumentStore(), vectors, embeddings.NewFakeEmbedder(16), chunker.New(50, 150, 20), zerolog.Nop())

	_, err := svc.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)

	embedder := embeddings.NewFakeEmbedder(16)
	query, err := embedder.Embed(context.Background(), []string{"grid connection"})
	require.NoError(t, err)

	hits, err := vectors.Search(context.Background(), query[0], chat.Filters{Countries: []string{"US"}}, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	miss, err := vectors.Search(context.Background(), query[0], chat.Filters{Countries: []string{"DE"}}, 10)
	require.NoError(t, err)
	assert.Empty(t, miss)
}

func TestContentHashStable(t *testing.T) {
	assert.Equal(t, ContentHash("body"), ContentHash("body"))
	assert.NotEqual(t, ContentHash("body"), ContentHash("Body"))
}
