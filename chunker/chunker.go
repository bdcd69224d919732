// Package chunker splits cleaned article text into overlapping,
// size-bounded passages suitable for embedding.
package chunker

import (
	"strings"
)

const (
	// DefaultMinSize is the minimum chunk size in characters.
	DefaultMinSize = 800
	// DefaultMaxSize is the maximum chunk size in characters.
	DefaultMaxSize = 1200
	// DefaultOverlap is the overlap between consecutive chunks in characters.
	DefaultOverlap = 100

	// sentenceLookback bounds the backward search for a sentence
	// boundary to the tail of the candidate chunk.
	sentenceLookback = 200
)

// Chunk is a contiguous span of the source text. Start and End are byte
// offsets into the original text with Start < End, so the original can
// be reconstructed from the spans.
type Chunk struct {
	Text  string
	Index int
	Start int
	End   int
}

// Chunker carves text into chunks of at most MaxSize characters,
// preferring sentence boundaries, then word boundaries, with Overlap
// characters shared between consecutive chunks.
type Chunker struct {
	MinSize int
	MaxSize int
	Overlap int
}

// New returns a Chunker with the given bounds. Non-positive values fall
// back to the defaults.
func New(minSize, maxSize, overlap int) *Chunker {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if maxSize <= minSize {
		maxSize = minSize + (DefaultMaxSize - DefaultMinSize)
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{MinSize: minSize, MaxSize: maxSize, Overlap: overlap}
}

// Chunk splits text into overlapping chunks. Empty or whitespace-only
// input yields an empty slice. A text no longer than MaxSize yields a
// single chunk spanning the whole text. Whitespace-only spans are
// skipped rather than emitted, so a whitespace run longer than MaxSize
// leaves a gap between consecutive spans; reconstruction from spans is
// exact except across such runs.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if len(text) <= c.MaxSize {
		return []Chunk{{Text: text, Index: 0, Start: 0, End: len(text)}}
	}

	chunks := make([]Chunk, 0, len(text)/c.MaxSize+1)
	index := 0
	start := 0

	for start < len(text) {
		end := start + c.MaxSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			end = start + c.cutPoint(text[start:end])
		}

		span := text[start:end]
		if strings.TrimSpace(span) != "" {
			chunks = append(chunks, Chunk{Text: span, Index: index, Start: start, End: end})
			index++
		}

		if end >= len(text) {
			break
		}

		// Overlap with the previous chunk, but never regress: when
		// Overlap >= MaxSize-MinSize the clamp still moves forward.
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// cutPoint returns the length of the prefix of candidate to keep,
// preferring a sentence boundary within the lookback window, then a
// whitespace boundary, then a hard cut at the full candidate length.
func (c *Chunker) cutPoint(candidate string) int {
	searchFrom := len(candidate) - sentenceLookback
	if searchFrom < 0 {
		searchFrom = 0
	}

	sentenceEnd := -1
	for _, terminal := range []string{". ", "! ", "? "} {
		if pos := strings.LastIndex(candidate[searchFrom:], terminal); pos != -1 {
			if abs := searchFrom + pos; abs > sentenceEnd {
				sentenceEnd = abs
			}
		}
	}
	if sentenceEnd != -1 && sentenceEnd+1 > c.MinSize {
		// Cut after the terminal character itself.
		return sentenceEnd + 1
	}

	if space := strings.LastIndex(candidate, " "); space > c.MinSize {
		return space
	}

	return len(candidate)
}
