package ragtypes

import "context"

// EmbeddingService turns text into dense vectors. Implementations may be
// remote (HTTP API) or local; the pipeline treats every call as a
// suspension point that may fail transiently or permanently.
type EmbeddingService interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns vectors in the same order as texts, all of equal
	// length. Callers that need ordering guarantees across calls must use
	// EmbedBatch rather than repeated Embed calls, per spec.md §5.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the fixed output vector length.
	Dimensions() int
}

// LanguageModel is an external text-in/text-out collaborator used for
// query expansion, rewriting, contextual enrichment, LM-reranking, and
// LM-grading. The pipeline is robust to malformed output: parse and fall
// back, never propagate a parse failure as a retrieval error.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

// VectorDocument is a unit of content handed to a VectorStore for
// persistence alongside its embedding.
type VectorDocument struct {
	ID       string
	Content  string
	Metadata Metadata
	Vector   []float32
}

// VectorSearchResult is a single hit returned from a VectorStore search.
type VectorSearchResult struct {
	ID       string
	Content  string
	Metadata Metadata
	Score    float64
}

// CollectionInfo summarizes a named collection in a VectorStore.
type CollectionInfo struct {
	Name  string
	Count int
}

// VectorStore is the id-keyed ANN backend the pipeline delegates dense
// search to. Every operation may fail; callers degrade to an in-memory
// mirror cosine search on failure, per spec.md §4.8.
type VectorStore interface {
	AddDocuments(ctx context.Context, collection string, docs []VectorDocument) error
	Search(ctx context.Context, collection string, query []float32, topK int) ([]VectorSearchResult, error)
	DeleteDocuments(ctx context.Context, collection string, ids []string) error
	DeleteAll(ctx context.Context, collection string) error
	ListCollections(ctx context.Context) ([]CollectionInfo, error)
}

// StoredDoc is the durable-mirror representation of an IndexedChunk,
// persisted by a PersistentStore.
type StoredDoc struct {
	Chunk
	DenseEmbedding  []float32
	SparseEmbedding SparseEmbedding
}

// PersistentStore is an optional, best-effort durable mirror of indexed
// chunks. Failures are logged and never fatal: the in-memory mirror
// remains authoritative, per spec.md §4.8.
type PersistentStore interface {
	Initialize(ctx context.Context) error
	LoadDocuments(ctx context.Context, collection string) ([]StoredDoc, error)
	SaveDocuments(ctx context.Context, collection string, docs []StoredDoc) error
	DeleteDocuments(ctx context.Context, collection string, ids []string) error
	ClearCollection(ctx context.Context, collection string) error
}

// Tokenizer turns text into an ordered term sequence. It is an external
// collaborator so that multilingual/CJK segmentation tables can be
// swapped in without touching the BM25 index, per spec.md §4.1.
type Tokenizer interface {
	Tokenize(text string) []string
}
