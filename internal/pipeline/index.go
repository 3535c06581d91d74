package pipeline

import (
	"context"
	"fmt"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ragerr"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// IndexDocument runs the indexing state machine of spec.md §4.8: dedup
// by content fingerprint, chunk, optionally contextually enrich, embed in
// a single batch, derive sparse vectors when hybrid search wants them,
// write to the vector backend (mirror-only on backend failure), append
// to the in-memory mirror, best-effort persist, and invalidate any
// cached results for the collection. It never returns a Go error;
// failures are reported in the returned IndexResult, per spec.md §7.
func (p *Pipeline) IndexDocument(ctx context.Context, content string, opts IndexingOptions) IndexResult {
	if !ragtypes.ValidCollectionName(opts.Collection) {
		return IndexResult{Error: ragerr.New(ragerr.ErrCodeInvalidCollection, "invalid collection name", nil)}
	}
	if content == "" {
		return IndexResult{Error: ragerr.New(ragerr.ErrCodeQueryEmpty, "document content is empty", nil)}
	}

	cfg := p.config()
	cs := p.getOrCreateCollection(ctx, opts.Collection)
	fingerprint := contentFingerprint(content)

	docID, skip, err := p.resolveDocumentID(ctx, cs, opts, fingerprint, cfg.Dedup)
	if err != nil {
		return IndexResult{Error: ragerr.Wrap(ragerr.ErrCodePersistenceFailed, err)}
	}
	if skip {
		return IndexResult{Success: true, Skipped: true, DocumentID: docID}
	}

	chunks, err := p.splitter.Split(docID, opts.Title, content)
	if err != nil {
		return IndexResult{Error: ragerr.Wrap(ragerr.ErrCodeInvalidQuery, err), DocumentID: docID}
	}
	if len(chunks) == 0 {
		return IndexResult{Success: true, DocumentID: docID}
	}

	p.enrichChunks(ctx, chunks, opts, content)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EffectiveContent()
	}
	dense := p.embedChunks(ctx, texts)

	indexed := make([]ragtypes.IndexedChunk, len(chunks))
	for i, c := range chunks {
		c.ID = chunkIDFor(opts.Collection, docID, c.ChunkIndex)
		ic := ragtypes.IndexedChunk{Chunk: c}
		if dense != nil {
			ic.DenseEmbedding = dense[i]
		}
		if cfg.HybridSearch.EnableSparse {
			ic.SparseEmbedding = deriveSparseEmbedding(p.tokenizer, c.EffectiveContent())
		}
		indexed[i] = ic
	}

	p.writeVectorBackend(ctx, opts.Collection, indexed)

	cs.mu.Lock()
	chunkIDs := make([]string, len(indexed))
	for i, ic := range indexed {
		cs.addChunkLocked(ic)
		chunkIDs[i] = ic.ID
	}
	cs.docChunkIDs[docID] = chunkIDs
	cs.docFingerprints[fingerprint] = docID
	cs.mu.Unlock()

	p.persistBestEffort(ctx, opts.Collection, indexed)
	p.queryCache.InvalidateCollection(opts.Collection)

	return IndexResult{ChunksCreated: len(indexed), Success: true, DocumentID: docID}
}

// resolveDocumentID implements index_document's dedup stage: an existing
// fingerprint match either short-circuits the call (skip mode) or
// reclaims the prior document id after clearing its old chunks (upsert
// mode), per spec.md §4.8's dedup-by-content-fingerprint rule.
func (p *Pipeline) resolveDocumentID(ctx context.Context, cs *collectionState, opts IndexingOptions, fingerprint string, dedup config.DedupConfig) (docID string, skip bool, err error) {
	if dedup.Enabled {
		cs.mu.RLock()
		existing, hit := cs.docFingerprints[fingerprint]
		cs.mu.RUnlock()

		if hit {
			switch dedup.Mode {
			case config.DedupSkip:
				return existing, true, nil
			case config.DedupUpsert:
				p.DeleteByDocumentID(ctx, opts.Collection, existing)
				return existing, false, nil
			}
		}
	}

	if opts.DocumentID != "" {
		return opts.DocumentID, false, nil
	}

	cs.mu.Lock()
	cs.docSeq++
	docID = fmt.Sprintf("doc-%d", cs.docSeq)
	cs.mu.Unlock()
	return docID, false, nil
}

// enrichChunks applies contextual prefixing and parent-content storage
// per IndexingOptions, mutating chunks in place.
func (p *Pipeline) enrichChunks(ctx context.Context, chunks []ragtypes.Chunk, opts IndexingOptions, fullContent string) {
	for i := range chunks {
		if opts.ContextEnrich {
			chunks[i].ContextualContent = p.contextualize(ctx, chunks[i], opts.Title)
		}
		if opts.ParentChild {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = ragtypes.Metadata{}
			}
			chunks[i].Metadata[ragtypes.MetaParentContent] = ragtypes.StringScalar(fullContent)
		}
	}
}

// contextualize builds a chunk's contextual prefix: an LM-generated
// one-line summary when a language model is configured, otherwise a
// heading/title-based prefix, per spec.md §4.8's contextual enrichment
// step.
func (p *Pipeline) contextualize(ctx context.Context, chunk ragtypes.Chunk, title string) string {
	heading := metadataString(chunk.Metadata, ragtypes.MetaHeading)

	if p.lm != nil {
		prompt := fmt.Sprintf(
			"Write a one-sentence summary situating this passage within a larger document titled %q. "+
				"Respond with only the sentence.\n\nPassage:\n%s",
			title, chunk.Content,
		)
		if resp, err := p.lm.Generate(ctx, prompt, 0.2); err == nil {
			if summary := trimToOneLine(resp); summary != "" {
				return summary + "\n\n" + chunk.Content
			}
		} else {
			p.logger.Warn("contextual enrichment LM call failed, using heading prefix", "error", err)
		}
	}

	prefix := title
	if heading != "" {
		prefix = fmt.Sprintf("%s > %s", title, heading)
	}
	if prefix == "" {
		return chunk.Content
	}
	return prefix + "\n\n" + chunk.Content
}

func trimToOneLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// embedChunks batches every chunk's effective content through the raw
// embedding service (not the single-query batcher: a document's chunks
// are already a natural batch). Returns nil, degrading the document to a
// BM25-only entry, when no embedder is configured or the call fails.
func (p *Pipeline) embedChunks(ctx context.Context, texts []string) [][]float32 {
	if p.embedder == nil {
		return nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.logger.Warn("batch embedding failed, indexing as keyword-only", "error", err)
		return nil
	}
	return vecs
}

// writeVectorBackend pushes dense-embedded chunks to the configured
// vector store. Chunks without a dense embedding, or any backend
// failure, leave the document's mirror/BM25/sparse indexing unaffected.
func (p *Pipeline) writeVectorBackend(ctx context.Context, collection string, indexed []ragtypes.IndexedChunk) {
	if p.vector == nil {
		return
	}
	docs := make([]ragtypes.VectorDocument, 0, len(indexed))
	for _, ic := range indexed {
		if len(ic.DenseEmbedding) == 0 {
			continue
		}
		docs = append(docs, ragtypes.VectorDocument{ID: ic.ID, Content: ic.EffectiveContent(), Metadata: ic.Metadata, Vector: ic.DenseEmbedding})
	}
	if len(docs) == 0 {
		return
	}
	if err := p.vector.AddDocuments(ctx, collection, docs); err != nil {
		p.logger.Warn("vector backend write failed, relying on in-memory mirror", "collection", collection, "error", err)
	}
}

// persistBestEffort mirrors newly indexed chunks to the persistent
// store. Failures are logged, never surfaced: the in-memory mirror
// remains authoritative for the life of the process.
func (p *Pipeline) persistBestEffort(ctx context.Context, collection string, indexed []ragtypes.IndexedChunk) {
	if p.persistent == nil {
		return
	}
	docs := make([]ragtypes.StoredDoc, len(indexed))
	for i, ic := range indexed {
		docs[i] = ragtypes.StoredDoc{Chunk: ic.Chunk, DenseEmbedding: ic.DenseEmbedding, SparseEmbedding: ic.SparseEmbedding}
	}
	if err := p.persistent.SaveDocuments(ctx, collection, docs); err != nil {
		p.logger.Warn("persistent store save failed", "collection", collection, "error", err)
	}
}
