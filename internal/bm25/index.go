// Package bm25 provides the lexical retrieval index: a contract
// (Index), a hand-rolled default implementation (MemIndex) whose
// internal bookkeeping is exact enough to satisfy the incremental
// doc_freq/avg_len invariants, and an alternate bleve-backed
// implementation (BleveIndex) for callers who want on-disk segment
// persistence instead.
package bm25

import "github.com/aman-cerp/ragcore/internal/ragtypes"

// Result is a single scored hit from Index.Search.
type Result struct {
	ID    string
	Score float64
}

// Config tunes the Okapi BM25 formula and the tokenizer it scores
// against.
type Config struct {
	// K1 controls term frequency saturation. Default 1.2.
	K1 float64
	// B controls document-length normalization. Default 0.75.
	B float64
	// Tokenizer turns text into an ordered term sequence. Required.
	Tokenizer ragtypes.Tokenizer
}

// DefaultConfig returns the spec-mandated K1/B defaults. Callers must
// still supply a Tokenizer.
func DefaultConfig(tok ragtypes.Tokenizer) Config {
	return Config{K1: 1.2, B: 0.75, Tokenizer: tok}
}

// Index is the BM25 lexical index contract: add/remove/search plus the
// bookkeeping queries the pipeline and stats surfaces need.
type Index interface {
	// Add tokenizes and inserts a single document, replacing any
	// existing document with the same id.
	Add(id, content string)
	// AddBatch inserts multiple documents in one call.
	AddBatch(docs []Document)
	// Remove deletes a document by id. No-op if absent.
	Remove(id string)
	// Search returns the top_k highest-scoring documents for query,
	// sorted by score descending with stable ties. Returns an empty
	// slice (not an error) for an empty or all-stopword query.
	Search(query string, topK int) []Result
	// Size returns the number of indexed documents.
	Size() int
	// Has reports whether id is indexed.
	Has(id string) bool
	// Clear removes all documents.
	Clear()
	// AllIDs returns every indexed document id. MemIndex returns them in
	// insertion order; BleveIndex in the order of a match-all search.
	AllIDs() []string
}

// Document is a single unit of content to add to an Index.
type Document struct {
	ID      string
	Content string
}
