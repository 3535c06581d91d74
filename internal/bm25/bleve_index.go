package bm25

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

const (
	tokenizerName = "ragcore_tokenizer"
	analyzerName  = "ragcore_analyzer"
)

var registerOnce sync.Once

// bleveDocument is the document shape stored in the Bleve index.
type bleveDocument struct {
	Content string `json:"content"`
}

// BleveIndex is the alternate BM25Index backend, wired to
// github.com/blevesearch/bleve/v2 for callers who want on-disk segment
// persistence instead of MemIndex's exact-formula in-memory scoring,
// mirroring the teacher's own BM25Backend "bleve" vs "sqlite" toggle
// concept (internal/store/bm25.go's BleveBM25Index).
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	tok    ragtypes.Tokenizer
	closed bool
}

var _ Index = (*BleveIndex)(nil)

// NewBleveIndex builds a Bleve-backed index. path == "" creates an
// in-memory index; otherwise the index persists to disk at path.
func NewBleveIndex(path string, tok ragtypes.Tokenizer) (*BleveIndex, error) {
	registerOnce.Do(func() {
		_ = registry.RegisterTokenizer(tokenizerName, tokenizerConstructor(tok))
	})

	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build bleve index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open/create bleve index: %w", err)
	}

	return &BleveIndex{index: idx, tok: tok}, nil
}

func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	if err := indexMapping.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": tokenizerName,
		"token_filters": []string{
			lowercase.Name,
		},
	}); err != nil {
		return nil, err
	}
	indexMapping.DefaultAnalyzer = analyzerName
	return indexMapping, nil
}

// Add implements Index.
func (b *BleveIndex) Add(id, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	_ = b.index.Index(id, bleveDocument{Content: content})
}

// AddBatch implements Index.
func (b *BleveIndex) AddBatch(docs []Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || len(docs) == 0 {
		return
	}
	batch := b.index.NewBatch()
	for _, d := range docs {
		_ = batch.Index(d.ID, bleveDocument{Content: d.Content})
	}
	_ = b.index.Batch(batch)
}

// Remove implements Index.
func (b *BleveIndex) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	_ = b.index.Delete(id)
}

// Search implements Index.
func (b *BleveIndex) Search(query string, topK int) []Result {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || strings.TrimSpace(query) == "" {
		return []Result{}
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	if topK > 0 {
		req.Size = topK
	}

	res, err := b.index.Search(req)
	if err != nil {
		return []Result{}
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if hit.Score > 0 {
			results = append(results, Result{ID: hit.ID, Score: hit.Score})
		}
	}
	return results
}

// Size implements Index.
func (b *BleveIndex) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	count, _ := b.index.DocCount()
	return int(count)
}

// Has implements Index.
func (b *BleveIndex) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	doc, err := b.index.Document(id)
	return err == nil && doc != nil
}

// Clear implements Index by deleting every indexed document in one
// batch, for in-memory and on-disk indexes alike.
func (b *BleveIndex) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	ids := b.allIDsLocked()
	if len(ids) == 0 {
		return
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	_ = b.index.Batch(batch)
}

// AllIDs implements Index.
func (b *BleveIndex) AllIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	return b.allIDsLocked()
}

func (b *BleveIndex) allIDsLocked() []string {
	docCount, _ := b.index.DocCount()
	if docCount == 0 {
		return nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	res, err := b.index.Search(req)
	if err != nil {
		return nil
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids
}

// Close releases the underlying Bleve index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// tokenizerConstructor adapts a ragtypes.Tokenizer into a Bleve
// analysis.Tokenizer so the index's term boundaries match exactly what
// MemIndex uses, keeping the two backends' term vocabularies aligned.
func tokenizerConstructor(tok ragtypes.Tokenizer) registry.TokenizerConstructor {
	return func(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
		return &adaptedTokenizer{tok: tok}, nil
	}
}

type adaptedTokenizer struct {
	tok ragtypes.Tokenizer
}

func (t *adaptedTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	terms := t.tok.Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(terms))
	offset := 0
	for i, term := range terms {
		start := strings.Index(strings.ToLower(text[offset:]), term)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(term)
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}
