package mcpsrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/staticembed"
	"github.com/aman-cerp/ragcore/internal/vectorstore"
	"github.com/aman-cerp/ragcore/pkg/rag"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	p, err := rag.New(rag.DefaultConfig(), rag.Options{
		Embedder:    staticembed.New(),
		VectorStore: vectorstore.New(vectorstore.DefaultConfig()),
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	s, err := NewServer(p, nil)
	require.NoError(t, err)
	return s
}

func TestNewServer_RejectsNilPipeline(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestNewServer_RegistersToolsAndDefaultsLogger(t *testing.T) {
	s := newTestServer(t)
	assert.NotNil(t, s.MCPServer())
	assert.NotNil(t, s.logger)
}

func TestHandleIndexDocument_RejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{Content: "x"})
	assert.Error(t, err, "missing collection should error")

	_, _, err = s.handleIndexDocument(ctx, nil, IndexDocumentInput{Collection: "docs"})
	assert.Error(t, err, "missing content should error")
}

func TestHandleIndexDocumentThenRetrieve_RoundTrips(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, indexOut, err := s.handleIndexDocument(ctx, nil, IndexDocumentInput{
		Collection: "docs",
		Content:    "Goroutines are lightweight threads managed by the Go runtime.",
		Title:      "concurrency",
	})
	require.NoError(t, err)
	assert.True(t, indexOut.Success)
	assert.Equal(t, 1, indexOut.ChunksCreated)
	assert.Empty(t, indexOut.Error)

	_, retrieveOut, err := s.handleRetrieve(ctx, nil, RetrieveInput{
		Query:      "What manages goroutines?",
		Collection: "docs",
	})
	require.NoError(t, err)
	require.NotEmpty(t, retrieveOut.Documents)
	assert.Contains(t, retrieveOut.Documents[0].Content, "Goroutines")
}

func TestHandleRetrieve_RejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleRetrieve(ctx, nil, RetrieveInput{Collection: "docs"})
	assert.Error(t, err, "missing query should error")

	_, _, err = s.handleRetrieve(ctx, nil, RetrieveInput{Query: "q"})
	assert.Error(t, err, "missing collection should error")
}
