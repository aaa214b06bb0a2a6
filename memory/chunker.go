package memory

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, tuned for report-length prose.
const (
	DefaultChunkWindow  = 1000
	DefaultChunkOverlap = 200
)

// chunkSeparators in preference order. The splitter cuts at the last
// occurrence of the strongest separator available inside the window.
var chunkSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits report text into overlapping fragments for embedding.
//
// Fragments are at most window bytes long and consecutive fragments share
// up to overlap bytes, so no sentence is stranded at a boundary without
// context. Cut points prefer paragraph breaks, then line breaks, then
// sentence ends, then word boundaries, then a hard cut.
type Chunker struct {
	window  int
	overlap int
}

// NewChunker creates a chunker. Window must be positive and overlap must
// be in [0, window).
func NewChunker(window, overlap int) (*Chunker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: chunk window must be positive, got %d", ErrInvalidArgument, window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidArgument, window, overlap)
	}
	return &Chunker{window: window, overlap: overlap}, nil
}

// DefaultChunker returns a chunker with the default window and overlap.
func DefaultChunker() *Chunker {
	c, _ := NewChunker(DefaultChunkWindow, DefaultChunkOverlap)
	return c
}

// Window returns the maximum fragment size in bytes.
func (c *Chunker) Window() int { return c.window }

// Overlap returns the maximum shared bytes between consecutive fragments.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered fragments of text. Empty input yields no
// fragments; input at most one window long yields exactly one. Every byte
// of the input appears in at least one fragment.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.window {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.window
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		cut := c.cutPoint(text, start, end)
		chunks = append(chunks, text[start:cut])

		start = cut - c.overlap
		// Overlap math can land mid-rune; the skipped bytes are already
		// covered by the previous fragment.
		for start < len(text) && !utf8.RuneStart(text[start]) {
			start++
		}
	}
	return chunks
}

// cutPoint finds where to end the fragment starting at start. The cut is
// always past start+overlap so the next fragment makes progress.
func (c *Chunker) cutPoint(text string, start, end int) int {
	minCut := start + c.overlap + 1
	if minCut >= end {
		return end
	}
	window := text[minCut:end]
	for _, sep := range chunkSeparators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return minCut + i + len(sep)
		}
	}
	// No separator in range: hard cut, backed off to a rune boundary.
	for end > minCut && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}
