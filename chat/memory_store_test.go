package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatchesSemantics(t *testing.T) {
	published := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	countries := []string{"US"}
	topics := []string{"renewables_solar"}

	assert.True(t, Filters{}.Matches(countries, topics, &published))
	assert.True(t, Filters{Countries: []string{"US"}}.Matches(countries, topics, &published))
	assert.False(t, Filters{Countries: []string{"DE"}}.Matches(countries, topics, &published))
	assert.True(t, Filters{Topics: []string{"renewables_solar", "grid"}}.Matches(countries, topics, &published))
	assert.False(t, Filters{Topics: []string{"hydrogen"}}.Matches(countries, topics, &published))

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Filters{DateFrom: &from, DateTo: &to}.Matches(countries, topics, &published))
	// Half-open interval: dateTo is exclusive.
	assert.False(t, Filters{DateTo: &published}.Matches(countries, topics, &published))
	assert.True(t, Filters{DateFrom: &published}.Matches(countries, topics, &published))
	// Date-bounded filters exclude passages without a timestamp.
	assert.False(t, Filters{DateFrom: &from}.Matches(countries, topics, nil))
}

func TestMemoryStoreFilterPushdown(t *testing.T) {
	store := NewMemoryVectorStore()
	articleID := uuid.New()
	store.PutArticle(articleID, ArticleMeta{Title: "US solar", URL: "https://example.com/us-solar"})
	seedPassage(t, store, articleID, 0, 0.95, []string{"US"}, []string{"renewables_solar"}, nil)

	included, err := store.Search(context.Background(), queryVector, Filters{Countries: []string{"US"}}, 5)
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, articleID, included[0].ArticleID)

	excluded, err := store.Search(context.Background(), queryVector, Filters{Countries: []string{"DE"}}, 5)
	require.NoError(t, err)
	assert.Empty(t, excluded, "filter must exclude regardless of similarity")
}

func TestMemoryStoreSkipsPassagesWithoutVectors(t *testing.T) {
	store := NewMemoryVectorStore()
	articleID := uuid.New()
	require.NoError(t, store.UpsertPassages(context.Background(), articleID, []Passage{
		{ID: uuid.New(), ChunkIndex: 0, Text: "no vector yet"},
	}))

	results, err := store.Search(context.Background(), queryVector, Filters{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreOrderingAndTieBreak(t *testing.T) {
	store := NewMemoryVectorStore()
	for _, sim := range []float64{0.6, 0.9, 0.75} {
		seedPassage(t, store, uuid.New(), 0, sim, nil, nil, nil)
	}

	results, err := store.Search(context.Background(), queryVector, Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-6)
	assert.InDelta(t, 0.75, results[1].Similarity, 1e-6)
	assert.InDelta(t, 0.6, results[2].Similarity, 1e-6)

	// Equal similarities order by chunk id for determinism.
	tied := NewMemoryVectorStore()
	a := seedPassage(t, tied, uuid.New(), 0, 0.8, nil, nil, nil)
	b := seedPassage(t, tied, uuid.New(), 0, 0.8, nil, nil, nil)
	first, err := tied.Search(context.Background(), queryVector, Filters{}, 10)
	require.NoError(t, err)
	second, err := tied.Search(context.Background(), queryVector, Filters{}, 10)
	require.NoError(t, err)
	assert.Equal(t, first[0].ChunkID, second[0].ChunkID)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, []uuid.UUID{first[0].ChunkID, first[1].ChunkID})
}

func TestMemoryStoreReplaceOnUpdate(t *testing.T) {
	store := NewMemoryVectorStore()
	articleID := uuid.New()
	store.PutArticle(articleID, ArticleMeta{Title: "v1", URL: "https://example.com/v1"})

	// First version: three passages.
	v1 := []Passage{
		{ID: uuid.New(), ChunkIndex: 0, Text: "one", Embedding: embeddingWithSimilarity(0.9)},
		{ID: uuid.New(), ChunkIndex: 1, Text: "two", Embedding: embeddingWithSimilarity(0.8)},
		{ID: uuid.New(), ChunkIndex: 2, Text: "three", Embedding: embeddingWithSimilarity(0.7)},
	}
	require.NoError(t, store.UpsertPassages(context.Background(), articleID, v1))
	require.Equal(t, 3, store.PassageCount(articleID))

	// Re-ingest with fewer passages; nothing stale may remain queryable.
	v2 := []Passage{
		{ID: uuid.New(), ChunkIndex: 0, Text: "rewritten", Embedding: embeddingWithSimilarity(0.85)},
	}
	require.NoError(t, store.UpsertPassages(context.Background(), articleID, v2))
	assert.Equal(t, 1, store.PassageCount(articleID))

	results, err := store.Search(context.Background(), queryVector, Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, v2[0].ID, results[0].ChunkID)
	assert.Equal(t, "rewritten", results[0].ChunkText)
}

func TestMemoryStoreKLimit(t *testing.T) {
	store := NewMemoryVectorStore()
	for i := 0; i < 6; i++ {
		seedPassage(t, store, uuid.New(), 0, 0.5+float64(i)*0.05, nil, nil, nil)
	}

	results, err := store.Search(context.Background(), queryVector, Filters{}, 4)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}
