package pipeline

import (
	"github.com/aman-cerp/ragcore/internal/ragerr"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// IndexingOptions parameterizes a single index_document call.
type IndexingOptions struct {
	Collection string
	// DocumentID, if set, becomes the source-document key embedded in
	// every chunk id ("{collection}::{DocumentID}::{chunk_index}") and is
	// used by delete_by_document_id and the dedup fingerprint map. If
	// empty, one is generated from a running per-collection sequence.
	DocumentID string
	Title      string
	// ContextEnrich turns on lightweight heading-based contextual
	// prefixes (and, if a LanguageModel is configured, LM-generated
	// summaries) on each chunk's ContextualContent.
	ContextEnrich bool
	// ParentChild, when set, stores the full source content in each
	// chunk's metadata under MetaParentContent.
	ParentChild bool
}

// IndexResult reports the outcome of index_document, per spec.md §7's
// in-band error propagation policy for the indexing surface.
type IndexResult struct {
	ChunksCreated int
	Success       bool
	Error         *ragerr.RagError
	DocumentID    string
	Skipped       bool // true when dedup.mode=skip matched an existing fingerprint
}

// RetrieveOptions parameterizes retrieve_iterative; zero values fall back
// to the pipeline's configured defaults.
type RetrieveOptions struct {
	MaxIterations        int
	SufficiencyThreshold float64
}

// CollectionStats answers get_collection_stats.
type CollectionStats struct {
	DocumentCount int
	Exists        bool
}

// CacheStats answers get_cache_stats.
type CacheStats struct {
	Hits    int
	Misses  int
	HitRate float64
	Size    int
}

// variant is one formulation of the user's query searched in step 5.
type variant struct {
	query   string
	isOriginal bool
}

func passthroughRerank(docs []ragtypes.ScoredDoc) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, len(docs))
	for i, d := range docs {
		rd := ragtypes.RerankedDoc{ScoredDoc: d}
		rd.RerankScore = d.OriginalScore
		out[i] = rd
	}
	return out
}
