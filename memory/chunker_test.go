package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker_Validation(t *testing.T) {
	_, err := NewChunker(0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewChunker(-5, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewChunker(100, 100)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewChunker(100, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	c, err := NewChunker(100, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, c.Window())
	assert.Equal(t, 0, c.Overlap())
}

func TestChunker_Empty(t *testing.T) {
	c := DefaultChunker()
	assert.Empty(t, c.Split(""))
}

func TestChunker_SingleChunk(t *testing.T) {
	c := DefaultChunker()
	text := "A short finding about battery degradation."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunker_WindowBound(t *testing.T) {
	c, err := NewChunker(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 50)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100, "chunk %d exceeds window", i)
		assert.NotEmpty(t, chunk, "chunk %d is empty", i)
	}
}

// Every byte of the input must appear in at least one chunk, and
// consecutive chunks must overlap. Uses unique tokens so each chunk has
// exactly one position in the original text.
func TestChunker_CoverageAndOverlap(t *testing.T) {
	c, err := NewChunker(80, 16)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, "token%04d ", i)
	}
	text := sb.String()

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	prevStart, prevEnd := -1, 0
	for i, chunk := range chunks {
		start := strings.Index(text, chunk)
		require.GreaterOrEqual(t, start, 0, "chunk %d not found in input", i)
		end := start + len(chunk)

		assert.Greater(t, start, prevStart, "chunk %d does not advance", i)
		// No gap: each chunk starts at or before the previous end.
		assert.LessOrEqual(t, start, prevEnd, "gap before chunk %d", i)
		if i > 0 {
			assert.Less(t, start, prevEnd, "chunks %d and %d do not overlap", i-1, i)
		}
		prevStart, prevEnd = start, end
	}
	assert.Equal(t, len(text), prevEnd, "input not fully covered")
}

func TestChunker_PrefersParagraphBreaks(t *testing.T) {
	c, err := NewChunker(100, 10)
	require.NoError(t, err)

	para := strings.Repeat("x", 60)
	text := para + "\n\n" + para + "\n\n" + para
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// The first cut should land on the paragraph break, not mid-paragraph.
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"),
		"first chunk should end at a paragraph break, got %q", chunks[0][len(chunks[0])-5:])
}

func TestChunker_HardCutWithoutSeparators(t *testing.T) {
	c, err := NewChunker(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("a", 200)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50)
	}
	assert.Equal(t, 50, len(chunks[0]))
}

func TestChunker_MultibyteSafe(t *testing.T) {
	c, err := NewChunker(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("研究報告書のデータ", 40)
	for _, chunk := range c.Split(text) {
		assert.True(t, strings.ToValidUTF8(chunk, "") == chunk, "chunk contains invalid UTF-8")
	}
}
