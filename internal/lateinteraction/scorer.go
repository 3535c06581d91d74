// Package lateinteraction implements a MaxSim scorer over pre-computed
// per-token embeddings (a ColBERT-style late-interaction signal). The
// pipeline searches it only through Pipeline.SearchLate; hybrid search
// does not fuse it, and hybrid_search.enable_late does not switch it on.
package lateinteraction

import (
	"math"
	"sort"
	"sync"
)

// Result is a single scored hit.
type Result struct {
	ID    string
	Score float64
}

// TokenEmbeddings is the per-token dense representation of a chunk:
// one fixed-dimension vector per token, in token order.
type TokenEmbeddings [][]float32

// Index scores TokenEmbeddings by MaxSim: for every query token, take
// its highest cosine similarity against any document token, then sum
// those maxima across all query tokens.
type Index struct {
	mu      sync.RWMutex
	vectors map[string]TokenEmbeddings
	order   []string
	seq     map[string]int
	nextSeq int
}

// NewIndex builds an empty late-interaction index.
func NewIndex() *Index {
	return &Index{
		vectors: make(map[string]TokenEmbeddings),
		seq:     make(map[string]int),
	}
}

// Add inserts or replaces a document's per-token embeddings.
func (idx *Index) Add(id string, tokens TokenEmbeddings) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.seq[id]; !exists {
		idx.seq[id] = idx.nextSeq
		idx.nextSeq++
		idx.order = append(idx.order, id)
	}
	idx.vectors[id] = tokens
}

// Remove deletes a document's per-token embeddings.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.vectors[id]; !ok {
		return
	}
	delete(idx.vectors, id)
	delete(idx.seq, id)
	for i, existing := range idx.order {
		if existing == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Search scores query's per-token embeddings against every indexed
// document via MaxSim, returning the top_k highest-scoring documents.
func (idx *Index) Search(query TokenEmbeddings, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) == 0 || len(idx.vectors) == 0 {
		return []Result{}
	}

	results := make([]Result, 0, len(idx.vectors))
	for _, id := range idx.order {
		docTokens := idx.vectors[id]
		if len(docTokens) == 0 {
			continue
		}
		score := maxSim(query, docTokens)
		if score > 0 {
			results = append(results, Result{ID: id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return idx.seq[results[i].ID] < idx.seq[results[j].ID]
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// maxSim computes the ColBERT-style late-interaction score: for each
// query token embedding, the maximum cosine similarity against any
// document token embedding, summed across query tokens.
func maxSim(query, doc TokenEmbeddings) float64 {
	total := 0.0
	for _, q := range query {
		best := 0.0
		for _, d := range doc {
			if sim := cosine(q, d); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
