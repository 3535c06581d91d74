package vectorstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func vdoc(id string, vec []float32) ragtypes.VectorDocument {
	return ragtypes.VectorDocument{ID: id, Content: "content-" + id, Vector: vec, Metadata: ragtypes.Metadata{"k": ragtypes.StringScalar("v")}}
}

func TestAddAndSearch_ReturnsNearestFirst(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{
		vdoc("a", []float32{1, 0, 0}),
		vdoc("b", []float32{0, 1, 0}),
		vdoc("c", []float32{0.9, 0.1, 0}),
	}))

	results, err := s.Search(ctx, "col", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "content-a", results[0].Content)
}

func TestSearch_EmptyCollectionReturnsNil(t *testing.T) {
	s := New(DefaultConfig())
	results, err := s.Search(context.Background(), "missing", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddDocuments_DimensionMismatchErrors(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("a", []float32{1, 0})}))

	err := s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("b", []float32{1, 0, 0})})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Got)
}

func TestAddDocuments_ReAddReplacesViaLazyDeletion(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("a", []float32{1, 0})}))
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("a", []float32{0, 1})}))

	info, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, 1, info[0].Count)
}

func TestDeleteDocuments_RemovesFromSearchResults(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{
		vdoc("a", []float32{1, 0}),
		vdoc("b", []float32{0, 1}),
	}))
	require.NoError(t, s.DeleteDocuments(ctx, "col", []string{"a"}))

	results, err := s.Search(ctx, "col", []float32{1, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestDeleteAll_DropsCollectionFromListing(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("a", []float32{1, 0})}))
	require.NoError(t, s.DeleteAll(ctx, "col"))

	info, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, info)
}

func TestSaveAndLoadCollection_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{
		vdoc("a", []float32{1, 0}),
		vdoc("b", []float32{0, 1}),
	}))
	require.NoError(t, s.SaveCollection("col", dir))

	restored := New(DefaultConfig())
	require.NoError(t, restored.LoadCollection("col", dir))

	results, err := restored.Search(ctx, "col", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestLoadCollection_MissingFileErrors(t *testing.T) {
	s := New(DefaultConfig())
	err := s.LoadCollection("nope", os.TempDir())
	assert.Error(t, err)
}

func TestListCollections_ExcludesCollectionsWithOnlyOrphanedEntries(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, s.AddDocuments(ctx, "col", []ragtypes.VectorDocument{vdoc("a", []float32{1, 0})}))
	require.NoError(t, s.DeleteDocuments(ctx, "col", []string{"a"}))

	info, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, info)
}
