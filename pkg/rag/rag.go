// Package rag is the public library surface over the retrieval core:
// a stable facade re-exporting internal/pipeline's Retrieve/Index/admin
// operations, the way the teacher's pkg/searcher and pkg/indexer wrap
// their own internal engines.
package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aman-cerp/ragcore/internal/adaptive"
	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/pipeline"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/internal/rerank"
)

// ErrNilEmbedder is returned by New when no EmbeddingService is supplied.
var ErrNilEmbedder = errors.New("rag: embedder is required")

// ErrNilVectorStore is returned by New when no VectorStore is supplied.
var ErrNilVectorStore = errors.New("rag: vector store is required")

// Result is a single retrieved, reranked document, re-exported from
// ragtypes so callers never need to import internal packages.
type Result = ragtypes.RerankedDoc

// Context is the outcome of a retrieval call: selected documents, a
// formatted context window, citations, and diagnostic metadata.
type Context = ragtypes.PipelineContext

// FusionConfig mirrors the weights hybrid search fuses with, matching
// the teacher's own pkg/searcher.FusionConfig shape.
type FusionConfig struct {
	VectorWeight  float64
	KeywordWeight float64
	SparseWeight  float64
	LateWeight    float64
	RRFConstant   int
}

// DefaultFusionConfig returns spec-aligned default fusion weights.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{VectorWeight: 0.5, KeywordWeight: 0.5, SparseWeight: 0.3, LateWeight: 0.2, RRFConstant: 60}
}

// ApplyTo overlays fc's weights onto cfg's hybrid search configuration.
func (fc FusionConfig) ApplyTo(cfg *Config) {
	cfg.HybridSearch.VectorWeight = fc.VectorWeight
	cfg.HybridSearch.KeywordWeight = fc.KeywordWeight
	cfg.HybridSearch.SparseWeight = fc.SparseWeight
	cfg.HybridSearch.LateWeight = fc.LateWeight
}

// Config is the complete, serializable retrieval core configuration.
type Config = config.Config

// DefaultConfig returns the library's default configuration.
func DefaultConfig() *Config { return config.New() }

// Options bundles Pipeline's external collaborators.
type Options struct {
	Embedder         ragtypes.EmbeddingService
	VectorStore      ragtypes.VectorStore
	LanguageModel    ragtypes.LanguageModel
	PersistentStore  ragtypes.PersistentStore
	Tokenizer        ragtypes.Tokenizer
	Logger           *slog.Logger
	ExternalReranker rerank.ExternalRanker
	SourceKeyFunc    adaptive.SourceKeyFunc
}

// Pipeline is the public retrieval core: construct with New, then call
// Retrieve/RetrieveIterative/IndexDocument and the collection/cache/
// feedback admin surface.
type Pipeline struct {
	inner *pipeline.Pipeline
}

// New builds a Pipeline. An Embedder and VectorStore are required;
// every other Options field is optional and the pipeline degrades
// gracefully when absent.
func New(cfg *Config, opts Options) (*Pipeline, error) {
	if opts.Embedder == nil {
		return nil, ErrNilEmbedder
	}
	if opts.VectorStore == nil {
		return nil, ErrNilVectorStore
	}
	deps := pipeline.Deps{
		Embedder:   opts.Embedder,
		Vector:     opts.VectorStore,
		LM:         opts.LanguageModel,
		Persistent: opts.PersistentStore,
		Tokenizer:  opts.Tokenizer,
		Logger:     opts.Logger,
		External:   opts.ExternalReranker,
		SourceKey:  opts.SourceKeyFunc,
	}
	return &Pipeline{inner: pipeline.New(cfg, deps)}, nil
}

// Retrieve runs a single retrieval pass. Never returns an error; an
// empty Context (Context.Empty() == true) signals no usable result.
func (p *Pipeline) Retrieve(ctx context.Context, query, collection string) *Context {
	return p.inner.Retrieve(ctx, query, collection)
}

// RetrieveOptions parameterizes RetrieveIterative.
type RetrieveOptions = pipeline.RetrieveOptions

// RetrieveIterative runs retrieve repeatedly, refining the query between
// rounds, until enough relevant documents are found or opts.MaxIterations
// is reached.
func (p *Pipeline) RetrieveIterative(ctx context.Context, query, collection string, opts RetrieveOptions) *Context {
	return p.inner.RetrieveIterative(ctx, query, collection, opts)
}

// IndexingOptions parameterizes IndexDocument.
type IndexingOptions = pipeline.IndexingOptions

// IndexResult reports the outcome of IndexDocument.
type IndexResult = pipeline.IndexResult

// IndexDocument chunks, embeds, and indexes content into collection.
// Never returns a Go error; failures are reported in IndexResult.Error.
func (p *Pipeline) IndexDocument(ctx context.Context, content string, opts IndexingOptions) IndexResult {
	return p.inner.IndexDocument(ctx, content, opts)
}

// ListCollections returns every collection name currently holding at
// least one chunk.
func (p *Pipeline) ListCollections(ctx context.Context) []string {
	return p.inner.ListCollections(ctx)
}

// CollectionStats reports document counts.
type CollectionStats = pipeline.CollectionStats

// GetCollectionStats reports collection's document count.
func (p *Pipeline) GetCollectionStats(ctx context.Context, collection string) CollectionStats {
	return p.inner.GetCollectionStats(ctx, collection)
}

// ClearCollection removes every chunk in collection from every backend.
func (p *Pipeline) ClearCollection(ctx context.Context, collection string) {
	p.inner.ClearCollection(ctx, collection)
}

// DeleteDocuments removes specific chunk ids from collection, returning
// the count actually removed.
func (p *Pipeline) DeleteDocuments(ctx context.Context, collection string, ids []string) int {
	return p.inner.DeleteDocuments(ctx, collection, ids)
}

// DeleteByDocumentID removes every chunk index_document produced for
// sourceDocID, returning the count actually removed.
func (p *Pipeline) DeleteByDocumentID(ctx context.Context, collection, sourceDocID string) int {
	return p.inner.DeleteByDocumentID(ctx, collection, sourceDocID)
}

// RecordFeedback records a relevance observation for adaptive reranking.
func (p *Pipeline) RecordFeedback(query, docID string, relevance float64, action ragtypes.FeedbackAction) {
	p.inner.RecordFeedback(query, docID, relevance, action)
}

// CacheStats reports the query cache's running counters.
type CacheStats = pipeline.CacheStats

// GetCacheStats reports the query cache's hit/miss counters.
func (p *Pipeline) GetCacheStats() CacheStats {
	return p.inner.GetCacheStats()
}

// InvalidateCache drops every cached result for collection, returning
// the count evicted.
func (p *Pipeline) InvalidateCache(collection string) int {
	return p.inner.InvalidateCache(collection)
}

// UpdateConfig overlays partial's non-zero fields onto the live
// configuration.
func (p *Pipeline) UpdateConfig(partial Config) {
	p.inner.UpdateConfig(partial)
}

// Close releases background resources (the embedding batcher's flush
// goroutine).
func (p *Pipeline) Close() {
	p.inner.Close()
}

// FeedbackAction re-exports ragtypes.FeedbackAction for callers that
// only import pkg/rag.
type FeedbackAction = ragtypes.FeedbackAction

const (
	ActionClick    = ragtypes.ActionClick
	ActionUse      = ragtypes.ActionUse
	ActionDismiss  = ragtypes.ActionDismiss
	ActionExplicit = ragtypes.ActionExplicit
)
