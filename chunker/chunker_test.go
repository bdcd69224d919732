package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func proseText(length int) string {
	var sb strings.Builder
	for sb.Len() < length {
		sb.WriteString("The grid operator announced a new interconnection queue reform. ")
	}
	return sb.String()[:length]
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(800, 1200, 100)

	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunkShortTextSingleChunk(t *testing.T) {
	c := New(800, 1200, 100)
	text := "A short article body."

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(text), chunks[0].End)
}

func TestChunkBoundsOnPlainProse(t *testing.T) {
	c := New(800, 1200, 100)
	text := proseText(3000)

	chunks := c.Chunk(text)
	require.GreaterOrEqual(t, len(chunks), 3)
	require.LessOrEqual(t, len(chunks), 4)

	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
		assert.LessOrEqual(t, len(ch.Text), 1200)
		assert.Less(t, ch.Start, ch.End)
	}
}

func TestChunkCoverageReconstructsText(t *testing.T) {
	c := New(100, 200, 40)
	text := proseText(2500)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	var sb strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		if i == 0 {
			require.Equal(t, 0, ch.Start)
			sb.WriteString(ch.Text)
		} else {
			require.LessOrEqual(t, ch.Start, prevEnd, "chunks must overlap or abut")
			sb.WriteString(ch.Text[prevEnd-ch.Start:])
		}
		require.Equal(t, text[ch.Start:ch.End], ch.Text)
		prevEnd = ch.End
	}

	assert.Equal(t, text, sb.String())
	assert.Equal(t, len(text), prevEnd)
}

func TestChunkIndexesAreSequential(t *testing.T) {
	c := New(100, 200, 40)
	chunks := c.Chunk(proseText(1000))

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunkForwardProgressWithLargeOverlap(t *testing.T) {
	// Overlap >= MaxSize-MinSize must still terminate.
	c := &Chunker{MinSize: 100, MaxSize: 150, Overlap: 150}
	text := strings.Repeat("abcdefghij", 100) // no boundaries at all

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestChunkHardCutWithoutBoundaries(t *testing.T) {
	c := &Chunker{MinSize: 50, MaxSize: 100, Overlap: 10}
	text := strings.Repeat("x", 350)

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 100)
	}
}
