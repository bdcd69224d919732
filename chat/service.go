package chat

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evergrid/newsrag/embeddings"
	"github.com/evergrid/newsrag/llm"
)

const (
	// DefaultK is the number of passages retrieved when the caller does
	// not specify k.
	DefaultK = 8
	// MaxK caps retrieval size.
	MaxK = 20

	generationTemperature = 0.1
	generationMaxTokens   = 1000
)

// Thresholds are the confidence policy constants. The defaults mirror
// observed behavior but are heuristic; they are configuration so they
// can be tuned against real similarity distributions.
type Thresholds struct {
	MinSimilarity float64
	Medium        float64
	HighMax       float64
	HighAvg       float64
}

// DefaultThresholds returns the stock confidence policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSimilarity: 0.5,
		Medium:        0.65,
		HighMax:       0.8,
		HighAvg:       0.7,
	}
}

// Service composes retrieval, confidence scoring, abstention, prompt
// construction, generation, and citation extraction into one
// request/response cycle. Each request is stateless; the service is
// safe for concurrent use.
type Service struct {
	vectors    VectorStore
	embedder   embeddings.Embedder
	llm        llm.Client
	thresholds Thresholds
	logger     zerolog.Logger
}

func NewService(vectors VectorStore, embedder embeddings.Embedder, llmClient llm.Client, thresholds Thresholds, logger zerolog.Logger) *Service {
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Service{
		vectors:    vectors,
		embedder:   embedder,
		llm:        llmClient,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Chat answers a question using retrieval-augmented generation. An
// abstention (confidence low, empty citations) is a normal response;
// errors are reserved for invalid requests and dependency failures.
func (s *Service) Chat(ctx context.Context, question string, filters Filters, k int) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("%w: question cannot be empty", ErrInvalidRequest)
	}
	if k < 0 {
		return Response{}, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidRequest, k)
	}
	if k == 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}

	results, err := s.SearchWithThreshold(ctx, question, filters, k, s.thresholds.MinSimilarity)
	if err != nil {
		return Response{}, err
	}

	confidence := s.assessConfidence(results)
	s.logger.Debug().
		Int("results", len(results)).
		Str("confidence", string(confidence)).
		Str("filters", filters.Describe()).
		Msg("retrieval assessed")

	if confidence == ConfidenceLow {
		return Response{
			Answer:         abstentionAnswer(filters),
			Citations:      []Citation{},
			Confidence:     ConfidenceLow,
			FiltersApplied: filters,
		}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildGroundingPrompt(results)},
		{Role: llm.RoleUser, Content: question},
	}

	answer, err := s.llm.Generate(ctx, messages, llm.GenerateOptions{
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return Response{
		Answer:         strings.TrimSpace(answer),
		Citations:      extractCitations(results),
		Confidence:     confidence,
		FiltersApplied: filters,
	}, nil
}

// Search embeds the query and runs filtered similarity search.
func (s *Service) Search(ctx context.Context, query string, filters Filters, k int) ([]SearchResult, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vectors", ErrRetrieval)
	}

	results, err := s.vectors.Search(ctx, vectors[0], filters, k)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", ErrRetrieval, err)
	}
	return results, nil
}

// SearchWithThreshold runs Search and drops trailing results below
// minSimilarity. Results are sorted by similarity, so this is a prefix
// truncation.
func (s *Service) SearchWithThreshold(ctx context.Context, query string, filters Filters, k int, minSimilarity float64) ([]SearchResult, error) {
	results, err := s.Search(ctx, query, filters, k)
	if err != nil {
		return nil, err
	}

	cut := len(results)
	for cut > 0 && results[cut-1].Similarity < minSimilarity {
		cut--
	}
	return results[:cut], nil
}

func (s *Service) assessConfidence(results []SearchResult) Confidence {
	if len(results) == 0 {
		return ConfidenceLow
	}

	var maxSim, sum float64
	for _, r := range results {
		if r.Similarity > maxSim {
			maxSim = r.Similarity
		}
		sum += r.Similarity
	}
	avgSim := sum / float64(len(results))

	switch {
	case maxSim < s.thresholds.MinSimilarity:
		return ConfidenceLow
	case maxSim >= s.thresholds.HighMax && avgSim >= s.thresholds.HighAvg:
		return ConfidenceHigh
	case maxSim >= s.thresholds.Medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// buildGroundingPrompt renders the numbered context block and the
// instruction set that forbids knowledge from outside it.
func buildGroundingPrompt(results []SearchResult) string {
	var context strings.Builder
	for i, r := range results {
		published := "Unknown"
		if r.PublishedAt != nil {
			published = r.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&context, "[%d] %s\n(Source: %s, Published: %s)\n\n", i+1, r.ChunkText, r.ArticleTitle, published)
	}

	return fmt.Sprintf(`You are an AI assistant specialized in energy transition news and policy.

Your task is to answer questions using ONLY the context provided below. Follow these rules strictly:

1. Base your answer ONLY on the provided context
2. Cite sources using bracketed numbers like [1], [2], etc. corresponding to the context items
3. If the context doesn't contain enough information to answer the question fully, say so explicitly
4. Do not use external knowledge or make assumptions beyond what's in the context
5. Be concise but comprehensive in your answer
6. Use multiple citations if relevant information comes from multiple sources

Context:
%s
Now answer the user's question using only the context above.`, strings.TrimRight(context.String(), "\n")+"\n")
}

func abstentionAnswer(filters Filters) string {
	if filters.IsZero() {
		return "I couldn't find articles relevant enough to answer this question (no filters applied). Try rephrasing the question or asking about a topic covered by the ingested sources."
	}
	return fmt.Sprintf("I couldn't find articles relevant enough to answer this question with the applied filter (%s). Try broadening or removing the filter.", filters.Describe())
}

// extractCitations deduplicates results by article, keeping the first
// occurrence per article in retrieval order. Results arrive sorted by
// similarity, so the kept chunk is the article's best match.
func extractCitations(results []SearchResult) []Citation {
	seen := make(map[uuid.UUID]struct{}, len(results))
	citations := make([]Citation, 0, len(results))

	for _, r := range results {
		if _, ok := seen[r.ArticleID]; ok {
			continue
		}
		seen[r.ArticleID] = struct{}{}
		citations = append(citations, Citation{
			ArticleID:   r.ArticleID,
			Title:       r.ArticleTitle,
			URL:         r.ArticleURL,
			PublishedAt: r.PublishedAt,
			Source:      sourceLabel(r.ArticleURL),
			ChunkID:     r.ChunkID,
			Similarity:  r.Similarity,
		})
	}
	return citations
}

func sourceLabel(articleURL string) string {
	u, err := url.Parse(articleURL)
	if err != nil || u.Host == "" {
		return "Unknown"
	}
	return u.Host
}
