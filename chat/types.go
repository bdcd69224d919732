// Package chat implements the retrieval-augmented question answering
// core: vector search over article passages, confidence assessment,
// abstention, grounded generation, and citation extraction.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Confidence classifies retrieval quality and drives the
// abstain/answer decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Filters restricts search candidates before ranking. Empty fields
// impose no restriction. Date bounds form a half-open interval
// [DateFrom, DateTo).
type Filters struct {
	Countries []string   `json:"countries,omitempty"`
	Topics    []string   `json:"topics,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
}

// IsZero reports whether no filter attribute is set.
func (f Filters) IsZero() bool {
	return len(f.Countries) == 0 && len(f.Topics) == 0 && f.DateFrom == nil && f.DateTo == nil
}

// Matches is the pure filter predicate over a passage's denormalized
// attributes.
func (f Filters) Matches(countries, topics []string, publishedAt *time.Time) bool {
	if len(f.Countries) > 0 && !intersects(f.Countries, countries) {
		return false
	}
	if len(f.Topics) > 0 && !intersects(f.Topics, topics) {
		return false
	}
	if f.DateFrom != nil && (publishedAt == nil || publishedAt.Before(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && (publishedAt == nil || !publishedAt.Before(*f.DateTo)) {
		return false
	}
	return true
}

// Describe renders the filter for user-facing messages, e.g. the
// abstention answer.
func (f Filters) Describe() string {
	if f.IsZero() {
		return "no filters"
	}

	parts := make([]string, 0, 4)
	if len(f.Countries) > 0 {
		parts = append(parts, "countries: "+strings.Join(f.Countries, ", "))
	}
	if len(f.Topics) > 0 {
		parts = append(parts, "topics: "+strings.Join(f.Topics, ", "))
	}
	if f.DateFrom != nil {
		parts = append(parts, "from "+f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		parts = append(parts, "until "+f.DateTo.Format("2006-01-02"))
	}
	return strings.Join(parts, "; ")
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// Passage is one chunk of an article with its embedding and the filter
// attributes denormalized from the parent article so search never joins
// back to the articles table for filtering.
type Passage struct {
	ID           uuid.UUID
	ChunkIndex   int
	Text         string
	Embedding    []float32
	CountryCodes []string
	TopicTags    []string
	PublishedAt  *time.Time
}

// SearchResult is an ephemeral, per-query view of a matching passage.
type SearchResult struct {
	ChunkID      uuid.UUID  `json:"chunk_id"`
	ChunkText    string     `json:"chunk_text"`
	ChunkIndex   int        `json:"chunk_index"`
	Similarity   float64    `json:"similarity"`
	ArticleID    uuid.UUID  `json:"article_id"`
	ArticleTitle string     `json:"article_title"`
	ArticleURL   string     `json:"article_url"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// Citation points at one source article. When several retrieved
// passages share an article the citation keeps the highest-similarity
// chunk.
type Citation struct {
	ArticleID   uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Source      string     `json:"source"`
	ChunkID     uuid.UUID  `json:"chunk_id"`
	Similarity  float64    `json:"similarity"`
}

// Response is the outcome of one chat request.
type Response struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Confidence     Confidence `json:"confidence"`
	FiltersApplied Filters    `json:"filters_applied"`
}

func (f Filters) String() string {
	return fmt.Sprintf("Filters(%s)", f.Describe())
}
