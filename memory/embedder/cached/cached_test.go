package cached_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalworks/recall/memory/embedder/cached"
	"github.com/orbitalworks/recall/memory/embedder/mock"
)

// countingEmbedder wraps the mock embedder and counts provider calls.
type countingEmbedder struct {
	inner     *mock.Embedder
	docCalls  atomic.Int64
	docTexts  atomic.Int64
	queryHits atomic.Int64
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.docCalls.Add(1)
	c.docTexts.Add(int64(len(texts)))
	return c.inner.EmbedDocuments(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queryHits.Add(1)
	return c.inner.EmbedQuery(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestCached_ServesHitsWithoutProvider(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: mock.New()}

	embedder, err := cached.New(counting, cached.Options{})
	require.NoError(t, err)
	t.Cleanup(embedder.Close)

	first, err := embedder.EmbedQuery(ctx, "repeated query text")
	require.NoError(t, err)
	embedder.Wait()

	second, err := embedder.EmbedQuery(ctx, "repeated query text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), counting.queryHits.Load(), "second call must be served from cache")
}

func TestCached_BatchForwardsOnlyMisses(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{inner: mock.New()}

	embedder, err := cached.New(counting, cached.Options{})
	require.NoError(t, err)
	t.Cleanup(embedder.Close)

	_, err = embedder.EmbedDocuments(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	embedder.Wait()

	vectors, err := embedder.EmbedDocuments(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, vec := range vectors {
		assert.Len(t, vec, counting.Dimensions(), "vector %d", i)
	}

	assert.Equal(t, int64(3), counting.docTexts.Load(), "only the miss should reach the provider")
}

func TestCached_DimensionsPassThrough(t *testing.T) {
	embedder, err := cached.New(mock.NewWithDimensions(128), cached.Options{})
	require.NoError(t, err)
	t.Cleanup(embedder.Close)

	assert.Equal(t, 128, embedder.Dimensions())
}
