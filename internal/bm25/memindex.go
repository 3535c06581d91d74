package bm25

import (
	"math"
	"sort"
	"sync"
)

// docEntry is the per-document bookkeeping MemIndex maintains: the term
// frequency map used for scoring, the document length for length
// normalization, and an insertion sequence number for stable tie-break.
type docEntry struct {
	termFreq map[string]int
	length   int
	seq      int
}

// MemIndex is a hand-rolled, in-memory Okapi BM25 index. Its internal
// doc_freq/avg_len bookkeeping is exact and incremental (add/remove in
// O(unique terms in doc)), grounded on the BM25F corpus pattern of
// chriscorrea-bm25md (per-doc term-frequency maps, running doc-frequency
// counters, running average length) generalized to the single-field,
// exact-formula contract this index's callers require.
type MemIndex struct {
	mu        sync.RWMutex
	cfg       Config
	docs      map[string]*docEntry
	postings  map[string]map[string]int // term -> docID -> tf
	totalLen  int
	nextSeq   int
}

var _ Index = (*MemIndex)(nil)

// NewMemIndex builds an empty index using cfg's K1/B/Tokenizer.
func NewMemIndex(cfg Config) *MemIndex {
	if cfg.K1 == 0 && cfg.B == 0 {
		cfg.K1, cfg.B = 1.2, 0.75
	}
	return &MemIndex{
		cfg:      cfg,
		docs:     make(map[string]*docEntry),
		postings: make(map[string]map[string]int),
	}
}

// Add implements Index.
func (idx *MemIndex) Add(id, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(id, content)
}

// AddBatch implements Index.
func (idx *MemIndex) AddBatch(docs []Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range docs {
		idx.addLocked(d.ID, d.Content)
	}
}

func (idx *MemIndex) addLocked(id, content string) {
	if _, exists := idx.docs[id]; exists {
		idx.removeLocked(id)
	}

	terms := idx.cfg.Tokenizer.Tokenize(content)
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}

	entry := &docEntry{termFreq: tf, length: len(terms), seq: idx.nextSeq}
	idx.nextSeq++
	idx.docs[id] = entry
	idx.totalLen += entry.length

	for term, count := range tf {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[string]int)
		}
		idx.postings[term][id] = count
	}
}

// Remove implements Index.
func (idx *MemIndex) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *MemIndex) removeLocked(id string) {
	entry, ok := idx.docs[id]
	if !ok {
		return
	}
	for term := range entry.termFreq {
		postings := idx.postings[term]
		delete(postings, id)
		if len(postings) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLen -= entry.length
	delete(idx.docs, id)
}

// Search implements Index. The only failure mode is an empty or
// all-stopword query, which yields an empty slice rather than an error.
func (idx *MemIndex) Search(query string, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTerms := idx.cfg.Tokenizer.Tokenize(query)
	if len(queryTerms) == 0 || len(idx.docs) == 0 {
		return []Result{}
	}

	queryFreq := make(map[string]int, len(queryTerms))
	for _, t := range queryTerms {
		queryFreq[t]++
	}

	n := float64(len(idx.docs))
	avgLen := float64(idx.totalLen) / n

	scores := make(map[string]float64)
	for term, qf := range queryFreq {
		postings := idx.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := float64(len(postings))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for docID, tf := range postings {
			entry := idx.docs[docID]
			docLen := float64(entry.length)
			norm := float64(tf) * (idx.cfg.K1 + 1) /
				(float64(tf) + idx.cfg.K1*(1-idx.cfg.B+idx.cfg.B*docLen/avgLen))
			scores[docID] += idf * norm * float64(qf)
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		if score > 0 {
			results = append(results, Result{ID: docID, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return idx.docs[results[i].ID].seq < idx.docs[results[j].ID].seq
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Size implements Index.
func (idx *MemIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Has implements Index.
func (idx *MemIndex) Has(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docs[id]
	return ok
}

// Clear implements Index.
func (idx *MemIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[string]*docEntry)
	idx.postings = make(map[string]map[string]int)
	idx.totalLen = 0
	idx.nextSeq = 0
}

// AllIDs implements Index, returned in insertion order.
func (idx *MemIndex) AllIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return idx.docs[ids[i]].seq < idx.docs[ids[j]].seq
	})
	return ids
}

// DocFrequency exposes a term's current doc_freq, for tests that verify
// the incremental-maintenance invariant directly.
func (idx *MemIndex) DocFrequency(term string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.postings[term])
}

// AverageLength exposes the current avg_len, for the same purpose.
func (idx *MemIndex) AverageLength() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docs))
}
