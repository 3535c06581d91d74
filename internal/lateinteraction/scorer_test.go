package lateinteraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AddAndSearch(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", TokenEmbeddings{{1, 0, 0}, {0, 1, 0}})
	idx.Add("d2", TokenEmbeddings{{0, 0, 1}})

	results := idx.Search(TokenEmbeddings{{1, 0, 0}}, 5)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestIndex_EmptyQueryReturnsEmpty(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", TokenEmbeddings{{1, 0, 0}})
	assert.Equal(t, []Result{}, idx.Search(TokenEmbeddings{}, 5))
}

func TestIndex_MaxSimSumsPerQueryTokenMaxima(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", TokenEmbeddings{{1, 0, 0}, {0, 1, 0}})

	results := idx.Search(TokenEmbeddings{{1, 0, 0}, {0, 1, 0}}, 5)
	require.Len(t, results, 1)
	assert.InDelta(t, 2.0, results[0].Score, 0.0001)
}

func TestIndex_RemoveAndSize(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", TokenEmbeddings{{1, 0, 0}})
	assert.Equal(t, 1, idx.Size())
	idx.Remove("d1")
	assert.Equal(t, 0, idx.Size())
}

func TestIndex_ReAddReplaces(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", TokenEmbeddings{{1, 0, 0}})
	idx.Add("d1", TokenEmbeddings{{0, 1, 0}})

	results := idx.Search(TokenEmbeddings{{1, 0, 0}}, 5)
	assert.Empty(t, results)

	results = idx.Search(TokenEmbeddings{{0, 1, 0}}, 5)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestIndex_TopKLimitsResults(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 5; i++ {
		idx.Add(string(rune('a'+i)), TokenEmbeddings{{1, 0, 0}})
	}
	results := idx.Search(TokenEmbeddings{{1, 0, 0}}, 2)
	assert.Len(t, results, 2)
}

func TestCosine_MismatchedDimsReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 0.0, cosine(nil, nil))
}
