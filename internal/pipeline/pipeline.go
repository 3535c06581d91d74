// Package pipeline implements the central retrieval/indexing state
// machine: query sanitization, cache lookup, multi-variant hybrid
// search, reciprocal-rank fusion, reranking, corrective grading,
// threshold+top-K selection, context assembly, and citation building on
// the retrieval side; deduplication, chunking, contextual enrichment,
// batched embedding, and dual-write (vector backend + in-memory mirror +
// best-effort persistent store) on the indexing side.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aman-cerp/ragcore/internal/adaptive"
	"github.com/aman-cerp/ragcore/internal/bm25"
	"github.com/aman-cerp/ragcore/internal/cache"
	"github.com/aman-cerp/ragcore/internal/chunker"
	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ctxmgr"
	"github.com/aman-cerp/ragcore/internal/embedbatch"
	"github.com/aman-cerp/ragcore/internal/lateinteraction"
	"github.com/aman-cerp/ragcore/internal/obslog"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/internal/rerank"
	"github.com/aman-cerp/ragcore/internal/sparse"
	"github.com/aman-cerp/ragcore/internal/tokenizer"
)

// Deps are the pipeline's external collaborators. pkg/rag.New requires
// Embedder and Vector; the pipeline itself accepts any of them nil and
// degrades gracefully when absent, per spec.md §4.8's failure semantics.
type Deps struct {
	Embedder   ragtypes.EmbeddingService
	Vector     ragtypes.VectorStore
	LM         ragtypes.LanguageModel     // optional: expansion, rewriting, LM-grade, LM-rerank
	Persistent ragtypes.PersistentStore   // optional: best-effort durable mirror
	Tokenizer  ragtypes.Tokenizer         // optional: defaults to tokenizer.Default
	Logger     *slog.Logger               // optional: defaults to obslog.NoOp()
	External   rerank.ExternalRanker      // optional: powers RerankExternal
	SourceKey  adaptive.SourceKeyFunc     // optional: overrides adaptive's doc_id -> source-key heuristic
}

// collectionState is the per-collection mutable state the pipeline
// guards with reader-writer discipline: readers are retrieval paths,
// writers are indexing/delete/clear/invalidate, per spec.md §5.
type collectionState struct {
	mu sync.RWMutex

	chunks map[string]ragtypes.IndexedChunk
	order  []string // insertion order, iterated for in-memory fallback search

	// docFingerprints maps a content fingerprint to the source document
	// id that produced it, for dedup.mode=skip.
	docFingerprints map[string]string
	// docChunkIDs maps a source document id to the chunk ids it produced,
	// for dedup.mode=upsert and delete_by_document_id.
	docChunkIDs map[string][]string
	docSeq      int

	bm25Index   *bm25.MemIndex
	sparseIndex *sparse.Index
	lateIndex   *lateinteraction.Index

	persistentLoaded bool
}

func newCollectionState(tok ragtypes.Tokenizer) *collectionState {
	return &collectionState{
		chunks:          make(map[string]ragtypes.IndexedChunk),
		docFingerprints: make(map[string]string),
		docChunkIDs:     make(map[string][]string),
		bm25Index:       bm25.NewMemIndex(bm25.DefaultConfig(tok)),
		sparseIndex:     sparse.NewIndex(),
		lateIndex:       lateinteraction.NewIndex(),
	}
}

// Pipeline is the retrieval core's orchestrator: one instance owns every
// collection's mirror, lexical/sparse/late indexes, the shared query
// cache, and the reranking/context-assembly stages.
type Pipeline struct {
	embedder   ragtypes.EmbeddingService
	vector     ragtypes.VectorStore
	lm         ragtypes.LanguageModel
	persistent ragtypes.PersistentStore
	tokenizer  ragtypes.Tokenizer
	logger     *slog.Logger

	batcher          *embedbatch.Batcher
	queryCache       *cache.QueryCache
	reranker         *rerank.Reranker
	adaptiveReranker *adaptive.Reranker
	ctxManager       *ctxmgr.Manager
	splitter         *chunker.MarkdownSplitter
	external         rerank.ExternalRanker

	cfgMu sync.RWMutex
	cfg   *config.Config

	colMu       sync.RWMutex
	collections map[string]*collectionState
}

// New builds a Pipeline from the given configuration and dependencies.
func New(cfg *config.Config, deps Deps) *Pipeline {
	if cfg == nil {
		cfg = config.New()
	}
	tok := deps.Tokenizer
	if tok == nil {
		tok = tokenizer.Default
	}
	logger := deps.Logger
	if logger == nil {
		logger = obslog.NoOp()
	}

	ttl := time.Duration(cfg.Cache.TTLMs) * time.Millisecond
	qc := cache.New(cfg.Cache.MaxSize, ttl, nil)

	p := &Pipeline{
		embedder:         deps.Embedder,
		vector:           deps.Vector,
		lm:               deps.LM,
		persistent:       deps.Persistent,
		tokenizer:        tok,
		logger:           logger,
		batcher:          embedbatch.New(cfg.Batcher, deps.Embedder, deps.Embedder != nil),
		queryCache:       qc,
		reranker:         rerank.New(),
		adaptiveReranker: adaptive.New(adaptiveConfigFrom(cfg, deps.SourceKey)),
		ctxManager:       ctxmgr.New(ctxmgr.DefaultConfig()),
		splitter:         chunker.NewMarkdownSplitter(chunker.DefaultOptions()),
		external:         deps.External,
		cfg:              cfg,
		collections:      make(map[string]*collectionState),
	}
	return p
}

func adaptiveConfigFrom(cfg *config.Config, sourceKey adaptive.SourceKeyFunc) adaptive.Config {
	ac := adaptive.DefaultConfig()
	ac.FeedbackWeight = cfg.AdaptiveReranking.FeedbackWeight
	// Chunk ids are "{collection}::{docID}::{index}", not adaptive's
	// default ":"-delimited source-key scheme, so route through
	// docIDFromChunkID unless the caller supplies its own grouping.
	if sourceKey != nil {
		ac.SourceKeyFunc = sourceKey
	} else {
		ac.SourceKeyFunc = docIDFromChunkID
	}
	return ac
}

// config returns a snapshot of the current configuration, safe to read
// without holding cfgMu afterward.
func (p *Pipeline) config() config.Config {
	p.cfgMu.RLock()
	defer p.cfgMu.RUnlock()
	return *p.cfg
}

// UpdateConfig overlays partial onto the live configuration, per
// spec.md §6's update_config(partial_config).
func (p *Pipeline) UpdateConfig(partial config.Config) {
	p.cfgMu.Lock()
	p.cfg.Merge(partial)
	p.cfgMu.Unlock()
}

// getOrCreateCollection returns the named collection's state, creating
// it (and, on first touch, lazily loading any persistent mirror) if
// necessary.
func (p *Pipeline) getOrCreateCollection(ctx context.Context, name string) *collectionState {
	p.colMu.Lock()
	cs, ok := p.collections[name]
	if !ok {
		cs = newCollectionState(p.tokenizer)
		p.collections[name] = cs
	}
	p.colMu.Unlock()

	p.loadPersistentOnce(ctx, name, cs)
	return cs
}

// loadPersistentOnce lazily hydrates cs from the persistent store on its
// first touch, per spec.md §4.8 step 3. Best-effort: failures are logged
// and never surfaced.
func (p *Pipeline) loadPersistentOnce(ctx context.Context, collection string, cs *collectionState) {
	if p.persistent == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.persistentLoaded {
		return
	}
	cs.persistentLoaded = true

	if err := p.persistent.Initialize(ctx); err != nil {
		p.logger.Warn("persistent store initialize failed", "error", err)
		return
	}
	docs, err := p.persistent.LoadDocuments(ctx, collection)
	if err != nil {
		p.logger.Warn("persistent store load failed", "collection", collection, "error", err)
		return
	}
	for _, d := range docs {
		ic := ragtypes.IndexedChunk{Chunk: d.Chunk, DenseEmbedding: d.DenseEmbedding, SparseEmbedding: d.SparseEmbedding}
		cs.addChunkLocked(ic)
	}
}

// addChunkLocked inserts ic into every in-memory index. Callers must
// hold cs.mu.
func (cs *collectionState) addChunkLocked(ic ragtypes.IndexedChunk) {
	if _, exists := cs.chunks[ic.ID]; !exists {
		cs.order = append(cs.order, ic.ID)
	}
	cs.chunks[ic.ID] = ic
	cs.bm25Index.Add(ic.ID, ic.EffectiveContent())
	if len(ic.SparseEmbedding) > 0 {
		cs.sparseIndex.Add(ic.ID, ic.SparseEmbedding)
	}
}

// removeChunkLocked removes a chunk from every in-memory index. Callers
// must hold cs.mu.
func (cs *collectionState) removeChunkLocked(id string) {
	if _, ok := cs.chunks[id]; !ok {
		return
	}
	delete(cs.chunks, id)
	cs.bm25Index.Remove(id)
	cs.sparseIndex.Remove(id)
	cs.lateIndex.Remove(id)
	for i, existing := range cs.order {
		if existing == id {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			break
		}
	}
}

// ListCollections answers list_collections: every collection name that
// currently holds at least one chunk, either in memory or in the vector
// backend.
func (p *Pipeline) ListCollections(ctx context.Context) []string {
	p.colMu.RLock()
	names := make(map[string]struct{}, len(p.collections))
	for name, cs := range p.collections {
		cs.mu.RLock()
		if len(cs.chunks) > 0 {
			names[name] = struct{}{}
		}
		cs.mu.RUnlock()
	}
	p.colMu.RUnlock()

	if p.vector != nil {
		if infos, err := p.vector.ListCollections(ctx); err == nil {
			for _, info := range infos {
				if info.Count > 0 {
					names[info.Name] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetCollectionStats answers get_collection_stats(collection).
func (p *Pipeline) GetCollectionStats(ctx context.Context, collection string) CollectionStats {
	cs := p.getOrCreateCollection(ctx, collection)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return CollectionStats{DocumentCount: len(cs.chunks), Exists: len(cs.chunks) > 0}
}

// ClearCollection answers clear_collection(collection): drops every
// chunk from every in-memory index, the vector backend, and the
// persistent mirror, then invalidates the query cache for it.
func (p *Pipeline) ClearCollection(ctx context.Context, collection string) {
	cs := p.getOrCreateCollection(ctx, collection)

	cs.mu.Lock()
	cs.chunks = make(map[string]ragtypes.IndexedChunk)
	cs.order = nil
	cs.docFingerprints = make(map[string]string)
	cs.docChunkIDs = make(map[string][]string)
	cs.bm25Index = bm25.NewMemIndex(bm25.DefaultConfig(p.tokenizer))
	cs.sparseIndex = sparse.NewIndex()
	cs.lateIndex = lateinteraction.NewIndex()
	cs.mu.Unlock()

	if p.vector != nil {
		if err := p.vector.DeleteAll(ctx, collection); err != nil {
			p.logger.Warn("vector backend clear failed", "collection", collection, "error", err)
		}
	}
	if p.persistent != nil {
		if err := p.persistent.ClearCollection(ctx, collection); err != nil {
			p.logger.Warn("persistent store clear failed", "collection", collection, "error", err)
		}
	}
	p.queryCache.InvalidateCollection(collection)
}

// DeleteDocuments answers delete_documents(collection, [id]), returning
// the number of chunks actually removed.
func (p *Pipeline) DeleteDocuments(ctx context.Context, collection string, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	cs := p.getOrCreateCollection(ctx, collection)

	cs.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := cs.chunks[id]; ok {
			cs.removeChunkLocked(id)
			removed++
		}
	}
	cs.mu.Unlock()

	if removed == 0 {
		return 0
	}
	if p.vector != nil {
		if err := p.vector.DeleteDocuments(ctx, collection, ids); err != nil {
			p.logger.Warn("vector backend delete failed", "collection", collection, "error", err)
		}
	}
	if p.persistent != nil {
		if err := p.persistent.DeleteDocuments(ctx, collection, ids); err != nil {
			p.logger.Warn("persistent store delete failed", "collection", collection, "error", err)
		}
	}
	p.queryCache.InvalidateCollection(collection)
	return removed
}

// DeleteByDocumentID answers delete_by_document_id(collection,
// source_doc_id): removes every chunk that index_document produced for
// that source document.
func (p *Pipeline) DeleteByDocumentID(ctx context.Context, collection, sourceDocID string) int {
	cs := p.getOrCreateCollection(ctx, collection)

	cs.mu.RLock()
	ids := append([]string(nil), cs.docChunkIDs[sourceDocID]...)
	cs.mu.RUnlock()

	removed := p.DeleteDocuments(ctx, collection, ids)

	cs.mu.Lock()
	delete(cs.docChunkIDs, sourceDocID)
	for fp, doc := range cs.docFingerprints {
		if doc == sourceDocID {
			delete(cs.docFingerprints, fp)
		}
	}
	cs.mu.Unlock()

	return removed
}

// RecordFeedback answers record_feedback(query, doc_id, relevance,
// action).
func (p *Pipeline) RecordFeedback(query, docID string, relevance float64, action ragtypes.FeedbackAction) {
	p.adaptiveReranker.RecordFeedback(query, docID, relevance, action)
}

// GetCacheStats answers get_cache_stats().
func (p *Pipeline) GetCacheStats() CacheStats {
	s := p.queryCache.Stats()
	return CacheStats{Hits: int(s.Hits), Misses: int(s.Misses), HitRate: s.HitRate(), Size: s.Size}
}

// InvalidateCache answers invalidate_cache(collection), returning the
// count of evicted entries.
func (p *Pipeline) InvalidateCache(collection string) int {
	return p.queryCache.InvalidateCollection(collection)
}

// Close releases the embedding batcher's background resources.
func (p *Pipeline) Close() {
	p.batcher.Close()
}

func contentFingerprint(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	if len(normalized) > 200 {
		normalized = normalized[:200]
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}

func chunkIDFor(collection, docID string, index int) string {
	return fmt.Sprintf("%s::%s::%d", collection, docID, index)
}
