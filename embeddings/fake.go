package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// FakeEmbedder produces deterministic unit-length vectors derived from
// the input text, so tests can run without a live provider. The same
// text always yields the same vector.
type FakeEmbedder struct {
	dimension int
}

// NewFakeEmbedder returns a deterministic test embedder. Non-positive
// dimensions default to 1536 to mirror text-embedding-3-small.
func NewFakeEmbedder(dimension int) *FakeEmbedder {
	if dimension <= 0 {
		dimension = 1536
	}
	return &FakeEmbedder{dimension: dimension}
}

func (e *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = e.vectorFor(text)
	}
	return results, nil
}

func (e *FakeEmbedder) Dimension() int {
	return e.dimension
}

func (e *FakeEmbedder) vectorFor(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dimension)
	var norm float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

var _ Embedder = (*FakeEmbedder)(nil)
