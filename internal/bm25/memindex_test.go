package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/tokenizer"
)

func newTestIndex() *MemIndex {
	return NewMemIndex(DefaultConfig(tokenizer.New(nil)))
}

func TestMemIndex_AddAndSearch(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "the cat sat on the mat")
	idx.Add("d2", "dogs are great companions")

	results := idx.Search("cat mat", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
}

func TestMemIndex_EmptyQueryReturnsEmptyNotError(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "some content here")
	assert.Equal(t, []Result{}, idx.Search("", 5))
	assert.Equal(t, []Result{}, idx.Search("   ", 5))
}

func TestMemIndex_ScoresDescendingStableTies(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "machine learning models")
	idx.Add("d2", "machine learning models")
	idx.Add("d3", "completely unrelated content")

	results := idx.Search("machine learning", 5)
	require.Len(t, results, 2)
	// Identical content -> identical scores -> tie broken by insertion order.
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, "d2", results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestMemIndex_IncrementalDocFreqAndAvgLen(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "apple banana cherry")
	idx.Add("d2", "apple banana")

	assert.Equal(t, 2, idx.DocFrequency("apple"))
	assert.Equal(t, 1, idx.DocFrequency("cherry"))
	assert.InDelta(t, 2.5, idx.AverageLength(), 0.001)

	idx.Remove("d1")
	assert.Equal(t, 1, idx.DocFrequency("apple"))
	assert.Equal(t, 0, idx.DocFrequency("cherry"))
	assert.InDelta(t, 2.0, idx.AverageLength(), 0.001)
}

func TestMemIndex_ReAddReplacesDocument(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "original content words")
	idx.Add("d1", "replacement content")

	assert.Equal(t, 1, idx.Size())
	assert.Equal(t, 0, idx.DocFrequency("original"))
	assert.Equal(t, 1, idx.DocFrequency("replacement"))
}

func TestMemIndex_RemoveErasesZeroDocFreqTerms(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "unique term here")
	idx.Remove("d1")
	assert.Equal(t, 0, idx.DocFrequency("unique"))
	assert.False(t, idx.Has("d1"))
}

func TestMemIndex_AddBatch(t *testing.T) {
	idx := newTestIndex()
	idx.AddBatch([]Document{
		{ID: "d1", Content: "first document text"},
		{ID: "d2", Content: "second document text"},
	})
	assert.Equal(t, 2, idx.Size())
}

func TestMemIndex_SizeHasClearAllIDs(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "alpha beta gamma")
	idx.Add("d2", "delta epsilon zeta")

	assert.Equal(t, 2, idx.Size())
	assert.True(t, idx.Has("d1"))
	assert.False(t, idx.Has("d3"))
	assert.Equal(t, []string{"d1", "d2"}, idx.AllIDs())

	idx.Clear()
	assert.Equal(t, 0, idx.Size())
	assert.Empty(t, idx.AllIDs())
}

func TestMemIndex_ScoresOmittedWhenNonPositive(t *testing.T) {
	idx := newTestIndex()
	idx.Add("d1", "alpha beta gamma")
	// Query term never appears anywhere: no results, not a zero-score entry.
	results := idx.Search("zzzznotpresent", 5)
	assert.Empty(t, results)
}

func TestMemIndex_TopKLimitsResults(t *testing.T) {
	idx := newTestIndex()
	for i := 0; i < 5; i++ {
		idx.Add(string(rune('a'+i)), "shared keyword content")
	}
	results := idx.Search("shared keyword", 2)
	assert.Len(t, results, 2)
}
