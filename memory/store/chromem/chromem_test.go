package chromem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitalworks/recall/memory"
	"github.com/orbitalworks/recall/memory/embedder/mock"
	"github.com/orbitalworks/recall/memory/store/chromem"
)

func embedOne(t *testing.T, e memory.Embedder, text string) []float32 {
	t.Helper()
	vec, err := e.EmbedQuery(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestRegistry_GetOrCreateAndGet(t *testing.T) {
	ctx := context.Background()
	registry, err := chromem.NewRegistry(chromem.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	key := memory.Private("atlas")

	_, err = registry.Get(ctx, key)
	assert.ErrorIs(t, err, memory.ErrCollectionNotFound)

	col, err := registry.GetOrCreate(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, col)

	again, err := registry.Get(ctx, key)
	require.NoError(t, err)
	assert.Same(t, col, again, "cached handle expected")
}

func TestCollection_UpsertQueryCount(t *testing.T) {
	ctx := context.Background()
	registry, err := chromem.NewRegistry(chromem.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	embedder := mock.New()
	col, err := registry.GetOrCreate(ctx, memory.Private("atlas"))
	require.NoError(t, err)

	docs := []memory.Document{
		{
			ID:        "11111111-1111-1111-1111-111111111111",
			Content:   "glacier melt accelerates sea level rise",
			Embedding: embedOne(t, embedder, "glacier melt accelerates sea level rise"),
			Metadata:  map[string]string{"report_id": "r1"},
		},
		{
			ID:        "22222222-2222-2222-2222-222222222222",
			Content:   "sourdough starter needs daily feeding",
			Embedding: embedOne(t, embedder, "sourdough starter needs daily feeding"),
			Metadata:  map[string]string{"report_id": "r2"},
		},
	}
	require.NoError(t, col.Upsert(ctx, docs))

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	matches, err := col.Query(ctx, embedOne(t, embedder, "glacier sea level"), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "glacier melt accelerates sea level rise", matches[0].Content)
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)
	assert.Equal(t, "r1", matches[0].Metadata["report_id"])

	// Asking for more than stored returns what exists.
	matches, err = col.Query(ctx, embedOne(t, embedder, "anything"), 50)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCollection_UpsertReplacesSameID(t *testing.T) {
	ctx := context.Background()
	registry, err := chromem.NewRegistry(chromem.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	embedder := mock.New()
	col, err := registry.GetOrCreate(ctx, memory.Private("atlas"))
	require.NoError(t, err)

	id := "33333333-3333-3333-3333-333333333333"
	require.NoError(t, col.Upsert(ctx, []memory.Document{{
		ID:        id,
		Content:   "first version",
		Embedding: embedOne(t, embedder, "first version"),
	}}))
	require.NoError(t, col.Upsert(ctx, []memory.Document{{
		ID:        id,
		Content:   "second version",
		Embedding: embedOne(t, embedder, "second version"),
	}}))

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := col.Query(ctx, embedOne(t, embedder, "second version"), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "second version", matches[0].Content)
}

func TestCollection_QueryEmptyCollection(t *testing.T) {
	ctx := context.Background()
	registry, err := chromem.NewRegistry(chromem.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	col, err := registry.GetOrCreate(ctx, memory.Private("atlas"))
	require.NoError(t, err)

	matches, err := col.Query(ctx, embedOne(t, mock.New(), "anything"), 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRegistry_Drop(t *testing.T) {
	ctx := context.Background()
	registry, err := chromem.NewRegistry(chromem.Options{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	key := memory.Private("atlas")

	err = registry.Drop(ctx, key)
	assert.ErrorIs(t, err, memory.ErrCollectionNotFound)

	_, err = registry.GetOrCreate(ctx, key)
	require.NoError(t, err)

	require.NoError(t, registry.Drop(ctx, key))
	_, err = registry.Get(ctx, key)
	assert.ErrorIs(t, err, memory.ErrCollectionNotFound)
}

// Documents written by one registry must be visible after reopening the
// same storage root.
func TestRegistry_PersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := mock.New()

	registry, err := chromem.NewRegistry(chromem.Options{Path: dir})
	require.NoError(t, err)

	col, err := registry.GetOrCreate(ctx, memory.Private("atlas"))
	require.NoError(t, err)
	require.NoError(t, col.Upsert(ctx, []memory.Document{{
		ID:        "44444444-4444-4444-4444-444444444444",
		Content:   "persistent finding about aquifer depletion",
		Embedding: embedOne(t, embedder, "persistent finding about aquifer depletion"),
	}}))
	require.NoError(t, registry.Close())

	reopened, err := chromem.NewRegistry(chromem.Options{Path: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	col, err = reopened.Get(ctx, memory.Private("atlas"))
	require.NoError(t, err)

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := col.Query(ctx, embedOne(t, embedder, "aquifer depletion"), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Content, "aquifer")
}
