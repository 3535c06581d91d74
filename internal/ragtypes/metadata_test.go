package ragtypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_JSONRoundTripsAllScalarKinds(t *testing.T) {
	original := Metadata{
		"str":  StringScalar("hello"),
		"num":  NumberScalar(3.5),
		"bool": BoolScalar(true),
		"null": NullScalar(),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Metadata
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, "hello", restored.GetString("str"))
	assert.Equal(t, 3.5, restored.GetNumber("num"))
	assert.Equal(t, true, restored.GetBool("bool"))
	assert.True(t, restored["null"].IsNull())
}

func TestChunk_ValidateRejectsBadOffsets(t *testing.T) {
	c := &Chunk{ID: "x", StartOffset: 10, EndOffset: 5}
	assert.Error(t, c.Validate())
}

func TestChunk_EffectiveContentPrefersContextual(t *testing.T) {
	c := &Chunk{Content: "raw", ContextualContent: "context: raw"}
	assert.Equal(t, "context: raw", c.EffectiveContent())
}

func TestValidCollectionName(t *testing.T) {
	assert.True(t, ValidCollectionName("my-collection_1.2 3"))
	assert.False(t, ValidCollectionName(""))
	assert.False(t, ValidCollectionName("bad/name"))
}
