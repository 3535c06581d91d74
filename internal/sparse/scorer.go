// Package sparse implements the sparse-vector scorer: a term-id→weight
// map index scored with TF-IDF, weighted consistently with the BM25
// index's Okapi-plus-one IDF formula. It participates in hybrid search
// as a third ranked list when hybrid_search.enable_sparse is set.
package sparse

import (
	"math"
	"sort"
	"sync"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// Result is a single scored hit.
type Result struct {
	ID    string
	Score float64
}

// Index scores ragtypes.SparseEmbedding vectors (term id -> weight) by
// an unnormalized dot product with each term scaled by its IDF across
// the indexed corpus, mirroring internal/bm25's doc_freq bookkeeping so
// the two scorers stay consistent when used side by side in the same
// hybrid search.
type Index struct {
	mu       sync.RWMutex
	vectors  map[string]ragtypes.SparseEmbedding
	docFreq  map[int]int
	order    []string
	seq      map[string]int
	nextSeq  int
}

// NewIndex builds an empty sparse index.
func NewIndex() *Index {
	return &Index{
		vectors: make(map[string]ragtypes.SparseEmbedding),
		docFreq: make(map[int]int),
		seq:     make(map[string]int),
	}
}

// Add inserts or replaces a document's sparse embedding.
func (idx *Index) Add(id string, vec ragtypes.SparseEmbedding) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.seq[id]; exists {
		idx.removeLocked(id)
	}

	idx.vectors[id] = vec
	idx.seq[id] = idx.nextSeq
	idx.nextSeq++
	idx.order = append(idx.order, id)
	for term := range vec {
		idx.docFreq[term]++
	}
}

// Remove deletes a document's sparse embedding.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	vec, ok := idx.vectors[id]
	if !ok {
		return
	}
	for term := range vec {
		idx.docFreq[term]--
		if idx.docFreq[term] <= 0 {
			delete(idx.docFreq, term)
		}
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

// Search scores query (a sparse embedding, e.g. produced by a splade-style
// encoder) against every indexed document by IDF-weighted dot product,
// returning the top_k highest-scoring documents.
func (idx *Index) Search(query ragtypes.SparseEmbedding, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) == 0 || len(idx.vectors) == 0 {
		return []Result{}
	}

	n := float64(len(idx.vectors))
	idf := make(map[int]float64, len(query))
	for term := range query {
		df := float64(idx.docFreq[term])
		if df == 0 {
			continue
		}
		idf[term] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}

	results := make([]Result, 0, len(idx.vectors))
	for _, id := range idx.order {
		vec := idx.vectors[id]
		score := 0.0
		for term, qWeight := range query {
			weight, ok := vec[term]
			if !ok {
				continue
			}
			score += float64(qWeight) * float64(weight) * idf[term]
		}
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
