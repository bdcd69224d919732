package chat

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryVectorStore is an exact brute-force implementation of
// VectorStore. It is the reference behavior the Postgres store's
// approximate search is measured against, and it backs unit tests that
// must run without a database. Safe for concurrent readers during
// writer upserts; a passage set is replaced under the write lock, never
// observed half-swapped.
type MemoryVectorStore struct {
	mu       sync.RWMutex
	passages map[uuid.UUID][]Passage
	articles map[uuid.UUID]ArticleMeta
}

// ArticleMeta is the denormalized article header returned with search
// results.
type ArticleMeta struct {
	Title       string
	URL         string
	PublishedAt *time.Time
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		passages: make(map[uuid.UUID][]Passage),
		articles: make(map[uuid.UUID]ArticleMeta),
	}
}

// PutArticle registers article metadata used to populate results.
func (s *MemoryVectorStore) PutArticle(id uuid.UUID, meta ArticleMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[id] = meta
}

func (s *MemoryVectorStore) UpsertPassages(_ context.Context, articleID uuid.UUID, passages []Passage) error {
	copied := make([]Passage, len(passages))
	copy(copied, passages)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(copied) == 0 {
		delete(s.passages, articleID)
		return nil
	}
	s.passages[articleID] = copied
	return nil
}

// DeleteArticle removes an article and its passages (cascade).
func (s *MemoryVectorStore) DeleteArticle(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passages, id)
	delete(s.articles, id)
}

// PassageCount reports the number of stored passages for an article.
func (s *MemoryVectorStore) PassageCount(id uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages[id])
}

func (s *MemoryVectorStore) Search(_ context.Context, vector []float32, filters Filters, k int) ([]SearchResult, error) {
	if k < 1 {
		k = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, k)
	for articleID, passages := range s.passages {
		meta := s.articles[articleID]
		for _, p := range passages {
			if p.Embedding == nil {
				continue
			}
			if !filters.Matches(p.CountryCodes, p.TopicTags, p.PublishedAt) {
				continue
			}
			results = append(results, SearchResult{
				ChunkID:      p.ID,
				ChunkText:    p.Text,
				ChunkIndex:   p.ChunkIndex,
				Similarity:   clampSimilarity(cosineSimilarity(vector, p.Embedding)),
				ArticleID:    articleID,
				ArticleTitle: meta.Title,
				ArticleURL:   meta.URL,
				PublishedAt:  p.PublishedAt,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return strings.Compare(results[i].ChunkID.String(), results[j].ChunkID.String()) < 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorStore = (*MemoryVectorStore)(nil)
