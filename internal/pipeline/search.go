package pipeline

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/fusion"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// sparseBucketCount bounds the hashed term-id space used for both
// query-time and index-time sparse vector derivation, per the decision
// recorded in DESIGN.md that sparse embeddings are synthesized locally
// from term-frequency hashing rather than sourced from an external
// sparse-embedding service.
const sparseBucketCount = 1 << 16

// deriveSparseEmbedding hashes text's tokens into a fixed bucket space and
// weights each bucket by term frequency, giving search_single and
// index_document a query/document sparse vector without requiring an
// external sparse-embedding model.
func deriveSparseEmbedding(tok ragtypes.Tokenizer, text string) ragtypes.SparseEmbedding {
	terms := tok.Tokenize(text)
	if len(terms) == 0 {
		return nil
	}
	counts := make(map[int]float32, len(terms))
	for _, term := range terms {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		bucket := int(h.Sum32() % sparseBucketCount)
		counts[bucket]++
	}
	return ragtypes.SparseEmbedding(counts)
}

// searchSingle runs one query variant against every enabled backend
// (dense vector, BM25 keyword, sparse) in parallel and fuses the
// per-source ranked lists with reciprocal rank fusion, per spec.md §4.8
// step 5 / §5's "variant searches may be reordered, but the final merge
// is deterministic given the inputs."
func (p *Pipeline) searchSingle(ctx context.Context, cs *collectionState, collection, query string, cfg config.Config, topK int) ([]ragtypes.ScoredDoc, error) {
	var (
		denseResults  []fusion.Ranked
		keywordResult []fusion.Ranked
		sparseResults []fusion.Ranked
	)

	g, gctx := errgroup.WithContext(ctx)

	if p.embedder != nil {
		g.Go(func() error {
			vec, err := p.batcher.Embed(gctx, query, 0)
			if err != nil {
				p.logger.Warn("query embedding failed, dense search skipped", "error", err)
				return nil
			}
			denseResults = p.denseSearch(gctx, cs, collection, vec, topK)
			return nil
		})
	}

	if cfg.HybridSearch.Enabled {
		g.Go(func() error {
			cs.mu.RLock()
			hits := cs.bm25Index.Search(query, topK)
			cs.mu.RUnlock()
			list := make([]fusion.Ranked, len(hits))
			for i, h := range hits {
				list[i] = fusion.Ranked{ID: h.ID, Score: h.Score}
			}
			keywordResult = list
			return nil
		})
	}

	if cfg.HybridSearch.EnableSparse {
		g.Go(func() error {
			qvec := deriveSparseEmbedding(p.tokenizer, query)
			if len(qvec) == 0 {
				return nil
			}
			cs.mu.RLock()
			hits := cs.sparseIndex.Search(qvec, topK)
			cs.mu.RUnlock()
			list := make([]fusion.Ranked, len(hits))
			for i, h := range hits {
				list[i] = fusion.Ranked{ID: h.ID, Score: h.Score}
			}
			sparseResults = list
			return nil
		})
	}

	_ = g.Wait() // each goroutine swallows its own error and degrades; g.Wait() never returns non-nil here

	lists := make([][]fusion.Ranked, 0, 3)
	weights := make([]float64, 0, 3)
	if p.embedder != nil {
		lists = append(lists, fusion.NormalizeScores(denseResults))
		weights = append(weights, nonZeroOr(cfg.HybridSearch.VectorWeight, 1))
	}
	if cfg.HybridSearch.Enabled {
		lists = append(lists, fusion.NormalizeScores(keywordResult))
		weights = append(weights, nonZeroOr(cfg.HybridSearch.KeywordWeight, 1))
	}
	if cfg.HybridSearch.EnableSparse {
		lists = append(lists, fusion.NormalizeScores(sparseResults))
		weights = append(weights, nonZeroOr(cfg.HybridSearch.SparseWeight, 1))
	}

	fused := fusion.Fuse(lists, weights, fusion.DefaultK)

	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]ragtypes.ScoredDoc, 0, len(fused))
	for _, f := range fused {
		chunk, ok := cs.chunks[f.ID]
		if !ok {
			continue
		}
		out = append(out, ragtypes.ScoredDoc{
			ID:            chunk.ID,
			Content:       chunk.EffectiveContent(),
			Metadata:      chunk.Metadata,
			OriginalScore: f.CombinedScore,
			// Source records the dominant signal for a post-fusion result,
			// where a doc may have matched more than one backend; vector is
			// the conventional default since dense search is always the
			// first list fused when an embedder is configured.
			Source: ragtypes.SourceVector,
		})
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// denseSearch delegates to the configured vector backend, falling back
// to an in-memory cosine scan over the collection mirror on any backend
// error, per spec.md §4.8's degrade-gracefully rule.
func (p *Pipeline) denseSearch(ctx context.Context, cs *collectionState, collection string, query []float32, topK int) []fusion.Ranked {
	if p.vector != nil {
		results, err := p.vector.Search(ctx, collection, query, topK)
		if err == nil {
			list := make([]fusion.Ranked, len(results))
			for i, r := range results {
				list[i] = fusion.Ranked{ID: r.ID, Score: r.Score}
			}
			return list
		}
		p.logger.Warn("vector backend search failed, falling back to in-memory cosine scan", "collection", collection, "error", err)
	}
	return p.mirrorCosineSearch(cs, query, topK)
}

// mirrorCosineSearch scans the in-memory chunk mirror in insertion
// order, scoring each chunk with cosine similarity against query. Used
// whenever no vector backend is configured, or the configured one fails.
func (p *Pipeline) mirrorCosineSearch(cs *collectionState, query []float32, topK int) []fusion.Ranked {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	list := make([]fusion.Ranked, 0, len(cs.order))
	for _, id := range cs.order {
		chunk, ok := cs.chunks[id]
		if !ok || len(chunk.DenseEmbedding) == 0 {
			continue
		}
		list = append(list, fusion.Ranked{ID: id, Score: cosineSimilarity(query, chunk.DenseEmbedding)})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Score > list[j].Score })
	if topK > 0 && len(list) > topK {
		list = list[:topK]
	}
	return list
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func nonZeroOr(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// docIDFromChunkID extracts the source-document key a chunk id embeds
// ("{collection}::{docID}::{index}"), used by adaptive reranking's
// source-key grouping default.
func docIDFromChunkID(chunkID string) string {
	parts := strings.SplitN(chunkID, "::", 3)
	if len(parts) >= 2 {
		return parts[1]
	}
	return chunkID
}
