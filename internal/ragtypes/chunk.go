package ragtypes

import "fmt"

// Chunk is an immutable record produced from a source document.
//
// Invariant: StartOffset < EndOffset. ID is unique within its collection.
// Once indexed, content is immutable — mutation is modeled as delete +
// re-add by the owning pipeline.
type Chunk struct {
	ID                 string
	Content            string
	ContextualContent  string // optional: prefixed with document/heading/position summary
	ChunkIndex         int
	StartOffset        int
	EndOffset          int
	Metadata           Metadata
}

// Validate checks the chunk invariants.
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk: id is required")
	}
	if c.StartOffset >= c.EndOffset {
		return fmt.Errorf("chunk %s: start_offset %d must be < end_offset %d", c.ID, c.StartOffset, c.EndOffset)
	}
	return nil
}

// EffectiveContent returns ContextualContent when present, else Content.
func (c *Chunk) EffectiveContent() string {
	if c.ContextualContent != "" {
		return c.ContextualContent
	}
	return c.Content
}

// SparseEmbedding is a term-id -> weight map, a high-dimensional mostly-zero
// representation used as an alternate lexical-semantic signal.
type SparseEmbedding map[int]float32

// IndexedChunk is a Chunk plus its dense (and optional sparse) embeddings.
//
// Invariant: all dense vectors in a collection share the same dimensionality.
type IndexedChunk struct {
	Chunk
	DenseEmbedding  []float32
	SparseEmbedding SparseEmbedding
}

// ValidCollectionName reports whether name is a valid collection
// identifier: alphanumeric plus
// "-._ ", max 256 chars.
func ValidCollectionName(name string) bool {
	if name == "" || len(name) > 256 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == ' ':
		default:
			return false
		}
	}
	return true
}
