package pipeline

import (
	"context"

	"github.com/aman-cerp/ragcore/internal/lateinteraction"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// IndexTokenEmbeddings registers precomputed per-token embeddings for an
// already-indexed chunk. index_document has no way to synthesize these
// itself (ragtypes.EmbeddingService only embeds whole texts), so callers
// running their own token-level model (e.g. a ColBERT-style encoder) call
// this directly after indexing, per the scope boundary recorded in
// DESIGN.md.
func (p *Pipeline) IndexTokenEmbeddings(ctx context.Context, collection, chunkID string, tokens lateinteraction.TokenEmbeddings) {
	cs := p.getOrCreateCollection(ctx, collection)
	cs.mu.Lock()
	cs.lateIndex.Add(chunkID, tokens)
	cs.mu.Unlock()
}

// SearchLate runs a MaxSim late-interaction search directly against a
// collection's token-embedding index, for callers supplying their own
// query token embeddings. Not part of the retrieve state machine: no
// EmbeddingService in scope here produces per-token query vectors.
func (p *Pipeline) SearchLate(ctx context.Context, collection string, queryTokens lateinteraction.TokenEmbeddings, topK int) []ragtypes.ScoredDoc {
	cs := p.getOrCreateCollection(ctx, collection)

	cs.mu.RLock()
	defer cs.mu.RUnlock()

	hits := cs.lateIndex.Search(queryTokens, topK)
	out := make([]ragtypes.ScoredDoc, 0, len(hits))
	for _, h := range hits {
		chunk, ok := cs.chunks[h.ID]
		if !ok {
			continue
		}
		out = append(out, ragtypes.ScoredDoc{
			ID:            chunk.ID,
			Content:       chunk.EffectiveContent(),
			Metadata:      chunk.Metadata,
			OriginalScore: h.Score,
			Source:        ragtypes.SourceLate,
		})
	}
	return out
}
