package bm25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/tokenizer"
)

func TestBleveIndex_AddSearchRemove(t *testing.T) {
	idx, err := NewBleveIndex("", tokenizer.New(nil))
	require.NoError(t, err)
	defer idx.Close()

	idx.Add("d1", "the cat sat on the mat")
	idx.Add("d2", "dogs are great companions")

	assert.Equal(t, 2, idx.Size())
	assert.True(t, idx.Has("d1"))

	results := idx.Search("cat mat", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "d1", results[0].ID)

	idx.Remove("d1")
	assert.False(t, idx.Has("d1"))
	assert.Equal(t, 1, idx.Size())
}

func TestBleveIndex_EmptyQueryReturnsEmpty(t *testing.T) {
	idx, err := NewBleveIndex("", tokenizer.New(nil))
	require.NoError(t, err)
	defer idx.Close()

	idx.Add("d1", "some content")
	assert.Equal(t, []Result{}, idx.Search("", 5))
}

func TestBleveIndex_AddBatchAndAllIDs(t *testing.T) {
	idx, err := NewBleveIndex("", tokenizer.New(nil))
	require.NoError(t, err)
	defer idx.Close()

	idx.AddBatch([]Document{
		{ID: "d1", Content: "first document"},
		{ID: "d2", Content: "second document"},
	})
	ids := idx.AllIDs()
	assert.ElementsMatch(t, []string{"d1", "d2"}, ids)
}

func TestBleveIndex_Clear(t *testing.T) {
	idx, err := NewBleveIndex("", tokenizer.New(nil))
	require.NoError(t, err)
	defer idx.Close()

	idx.Add("d1", "alpha beta gamma")
	idx.Clear()
	assert.Equal(t, 0, idx.Size())
}

func TestBleveIndex_CloseIsIdempotent(t *testing.T) {
	idx, err := NewBleveIndex("", tokenizer.New(nil))
	require.NoError(t, err)
	assert.NoError(t, idx.Close())
	assert.NoError(t, idx.Close())
}
