// Package mock provides a deterministic embedder for tests and examples.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder generates deterministic bag-of-words embeddings: each token is
// hashed into a dimension bucket and the counts are unit-normalized.
// Texts sharing vocabulary get genuinely similar vectors, so retrieval
// ranking behaves like it would with a real model. No model files needed.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2 dimensions.
func New() *Embedder {
	return NewWithDimensions(384)
}

// NewWithDimensions creates a mock embedder with a custom vector size.
func NewWithDimensions(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dimensions: dims}
}

// EmbedDocuments embeds each text independently.
func (m *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.embed(text)
	}
	return vectors, nil
}

// EmbedQuery embeds a query. Symmetric model: same path as documents.
func (m *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.embed(text), nil
}

// Dimensions returns the embedding vector size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func (m *Embedder) embed(text string) []float32 {
	vec := make([]float32, m.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'()[]")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(m.dimensions)]++
	}
	return normalize(vec)
}

// normalize converts the vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
