package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func TestIndex_AddAndSearch(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", ragtypes.SparseEmbedding{1: 0.5, 2: 0.8})
	idx.Add("d2", ragtypes.SparseEmbedding{3: 0.9})

	results := idx.Search(ragtypes.SparseEmbedding{1: 1.0, 2: 1.0}, 5)
	assert := assert.New(t)
	assert.Len(results, 1)
	assert.Equal("d1", results[0].ID)
}

func TestIndex_EmptyQueryReturnsEmpty(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", ragtypes.SparseEmbedding{1: 0.5})
	assert.Equal(t, []Result{}, idx.Search(ragtypes.SparseEmbedding{}, 5))
}

func TestIndex_RemoveDecaysDocFreq(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", ragtypes.SparseEmbedding{1: 0.5})
	idx.Add("d2", ragtypes.SparseEmbedding{1: 0.5})
	assert.Equal(t, 2, idx.docFreq[1])

	idx.Remove("d1")
	assert.Equal(t, 1, idx.docFreq[1])
	assert.Equal(t, 1, idx.Size())
}

func TestIndex_ReAddReplaces(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", ragtypes.SparseEmbedding{1: 0.5})
	idx.Add("d1", ragtypes.SparseEmbedding{2: 0.5})

	assert.Equal(t, 1, idx.Size())
	assert.Equal(t, 0, idx.docFreq[1])
	assert.Equal(t, 1, idx.docFreq[2])
}

func TestIndex_TopKLimitsResults(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 5; i++ {
		idx.Add(string(rune('a'+i)), ragtypes.SparseEmbedding{1: 0.5})
	}
	results := idx.Search(ragtypes.SparseEmbedding{1: 1.0}, 2)
	assert.Len(t, results, 2)
}

func TestIndex_StableTieBreakByInsertionOrder(t *testing.T) {
	idx := NewIndex()
	idx.Add("d1", ragtypes.SparseEmbedding{1: 0.5})
	idx.Add("d2", ragtypes.SparseEmbedding{1: 0.5})

	results := idx.Search(ragtypes.SparseEmbedding{1: 1.0}, 5)
	require := assert.New(t)
	require.Len(results, 2)
	require.Equal("d1", results[0].ID)
	require.Equal("d2", results[1].ID)
}
