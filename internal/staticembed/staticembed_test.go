package staticembed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_IsDeterministic(t *testing.T) {
	e := New()
	ctx := context.Background()

	first, err := e.Embed(ctx, "Goroutines communicate over channels.")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "Goroutines communicate over channels.")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmbed_ReturnsUnitLengthVector(t *testing.T) {
	e := New()
	vec, err := e.Embed(context.Background(), "a sentence with several distinct words")
	require.NoError(t, err)
	require.Len(t, vec, Dimensions)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestEmbed_EmptyTextReturnsZeroVector(t *testing.T) {
	e := New()
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, Dimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestEmbed_DissimilarTextsProduceDissimilarVectors(t *testing.T) {
	e := New()
	ctx := context.Background()

	a, err := e.Embed(ctx, "networking routers and the TCP handshake")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "sourdough bread needs flour water and time")
	require.NoError(t, err)

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	assert.Less(t, dot, 0.5, "unrelated passages should not look nearly identical")
}

func TestEmbedBatch_PreservesOrderAndLength(t *testing.T) {
	e := New()
	texts := []string{"first text", "second text", "third text"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, vecs[i])
	}
}

func TestEmbedBatch_EmptyInputReturnsEmptySlice(t *testing.T) {
	e := New()
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestDimensions_MatchesConstant(t *testing.T) {
	assert.Equal(t, Dimensions, New().Dimensions())
}

func TestClose_MakesFurtherEmbedCallsFail(t *testing.T) {
	e := New()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)

	// Idempotent: closing twice must not panic.
	assert.NoError(t, e.Close())
}

func TestSplitCodeCase_HandlesSnakeAndCamel(t *testing.T) {
	assert.ElementsMatch(t, []string{"http", "request"}, splitCodeCase("http_request"))
	assert.ElementsMatch(t, []string{"Http", "Request"}, splitCodeCase("HttpRequest"))
}
