package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot // inputs are unit vectors
}

func TestEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := New()

	v1, err := e.EmbedQuery(ctx, "solar panel efficiency")
	require.NoError(t, err)
	v2, err := e.EmbedQuery(ctx, "solar panel efficiency")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, e.Dimensions())
}

func TestEmbedder_SemanticOrdering(t *testing.T) {
	ctx := context.Background()
	e := New()

	query, err := e.EmbedQuery(ctx, "solar panel efficiency degradation")
	require.NoError(t, err)

	docs, err := e.EmbedDocuments(ctx, []string{
		"solar panel efficiency drops in hot climates",
		"sourdough bread rises overnight in the fridge",
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	related := cosine(query, docs[0])
	unrelated := cosine(query, docs[1])
	assert.Greater(t, related, unrelated,
		"text sharing vocabulary must score higher than unrelated text")
}

func TestEmbedder_UnitNorm(t *testing.T) {
	ctx := context.Background()
	e := New()

	vec, err := e.EmbedQuery(ctx, "some words repeated words words")
	require.NoError(t, err)

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, float64(norm), 1e-4)
}

func TestEmbedder_CaseAndPunctuationInsensitive(t *testing.T) {
	ctx := context.Background()
	e := New()

	v1, err := e.EmbedQuery(ctx, "Solar Panels!")
	require.NoError(t, err)
	v2, err := e.EmbedQuery(ctx, "solar panels")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestEmbedder_EmptyText(t *testing.T) {
	ctx := context.Background()
	e := New()

	vec, err := e.EmbedQuery(ctx, "")
	require.NoError(t, err)
	assert.Len(t, vec, e.Dimensions())
}
