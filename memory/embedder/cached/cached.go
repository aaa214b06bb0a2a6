// Package cached wraps any embedder with a ristretto read-through cache.
// Reports are chunked with overlap and agents repeat queries, so identical
// texts hit the embedding provider more than once without this.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
)

// Options configures the cache decorator.
type Options struct {
	// MaxBytes bounds the cache cost (approximate vector bytes held).
	// Default 64 MiB.
	MaxBytes int64

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// Embedder is a read-through cache in front of another Embedder.
// Cache keys are the exact input text; vectors are deterministic per
// model, so staleness is not a concern within one collection's lifetime.
type Embedder struct {
	inner  memory.Embedder
	cache  *ristretto.Cache
	logger *zap.Logger
}

// New wraps inner with a cache.
func New(inner memory.Embedder, opts Options) (*Embedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("%w: inner embedder is required", memory.ErrInvalidArgument)
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{inner: inner, cache: cache, logger: logger}, nil
}

// EmbedDocuments serves cached vectors and forwards only the misses.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := e.get(text); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		fresh, err := e.inner.EmbedDocuments(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(missTexts) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", memory.ErrEmbeddingUnavailable, len(missTexts), len(fresh))
		}
		for j, vec := range fresh {
			vectors[missIdx[j]] = vec
			e.put(missTexts[j], vec)
		}
	}

	e.logger.Debug("embed batch served",
		zap.Int("texts", len(texts)),
		zap.Int("misses", len(missTexts)))
	return vectors, nil
}

// EmbedQuery serves a cached vector or forwards to the inner embedder.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.get(text); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.put(text, vec)
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait flushes pending cache writes. Intended for tests.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}

func (e *Embedder) get(text string) ([]float32, bool) {
	val, ok := e.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := val.([]float32)
	return vec, ok
}

func (e *Embedder) put(text string, vec []float32) {
	e.cache.Set(text, vec, int64(len(vec)*4))
}

var _ memory.Embedder = (*Embedder)(nil)
