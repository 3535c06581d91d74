// Package vectorstore provides the default in-process ragtypes.VectorStore
// implementation: a collection-scoped HNSW approximate nearest-neighbor
// index per spec.md's "VectorStore is external/pluggable" contract.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// Config tunes the HNSW graph built per collection.
type Config struct {
	Metric         string // "cos" or "l2"; default "cos"
	M              int    // max connections per layer; default 16
	EfSearch       int    // query-time search width; default 20
	EfConstruction int    // build-time search width; default 128
}

// DefaultConfig mirrors coder/hnsw's own recommended defaults.
func DefaultConfig() Config {
	return Config{Metric: "cos", M: 16, EfSearch: 20, EfConstruction: 128}
}

func (c Config) withDefaults() Config {
	if c.Metric == "" {
		c.Metric = "cos"
	}
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 20
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 128
	}
	return c
}

// ErrDimensionMismatch is returned when a vector's length doesn't match
// the collection's established dimensionality.
type ErrDimensionMismatch struct {
	Collection string
	Expected   int
	Got        int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorstore: collection %q: dimension mismatch: expected %d, got %d", e.Collection, e.Expected, e.Got)
}

// HNSWStore is a pure-Go, in-process VectorStore backed by one HNSW graph
// per collection, grounded on the teacher's single-collection HNSWStore
// but generalized to spec.md's multi-collection model.
type HNSWStore struct {
	cfg Config

	mu          sync.RWMutex
	collections map[string]*collectionIndex
}

type collectionIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int
	idMap      map[string]uint64
	keyMap     map[uint64]string
	docs       map[string]ragtypes.VectorDocument
	nextKey    uint64
}

// New builds an HNSWStore. A zero Config is replaced with DefaultConfig.
func New(cfg Config) *HNSWStore {
	return &HNSWStore{cfg: cfg.withDefaults(), collections: make(map[string]*collectionIndex)}
}

func newCollectionIndex(cfg Config) *collectionIndex {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &collectionIndex{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		docs:   make(map[string]ragtypes.VectorDocument),
	}
}

func (s *HNSWStore) collection(name string) *collectionIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = newCollectionIndex(s.cfg)
		s.collections[name] = c
	}
	return c
}

// AddDocuments inserts or replaces vectors, keyed by VectorDocument.ID.
// A collection's dimensionality is fixed by its first insert.
func (s *HNSWStore) AddDocuments(ctx context.Context, collection string, docs []ragtypes.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}
	c := s.collection(collection)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dimensions == 0 {
		c.dimensions = len(docs[0].Vector)
	}
	for _, d := range docs {
		if len(d.Vector) != c.dimensions {
			return ErrDimensionMismatch{Collection: collection, Expected: c.dimensions, Got: len(d.Vector)}
		}
	}

	for _, d := range docs {
		// Lazy deletion on re-add: orphan the old key rather than calling
		// graph.Delete, which mishandles removing the graph's last node.
		if existingKey, exists := c.idMap[d.ID]; exists {
			delete(c.keyMap, existingKey)
			delete(c.idMap, d.ID)
		}

		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(d.Vector))
		copy(vec, d.Vector)
		if s.cfg.Metric == "cos" {
			normalizeInPlace(vec)
		}

		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[d.ID] = key
		c.keyMap[key] = d.ID
		c.docs[d.ID] = d
	}
	return nil
}

// Search returns the topK nearest documents to query within collection.
func (s *HNSWStore) Search(ctx context.Context, collection string, query []float32, topK int) ([]ragtypes.VectorSearchResult, error) {
	c := s.collection(collection)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.graph.Len() == 0 {
		return nil, nil
	}
	if c.dimensions != 0 && len(query) != c.dimensions {
		return nil, ErrDimensionMismatch{Collection: collection, Expected: c.dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.cfg.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := c.graph.Search(q, topK)
	results := make([]ragtypes.VectorSearchResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := c.keyMap[node.Key]
		if !ok {
			continue // lazily-deleted node, orphaned in the graph
		}
		doc := c.docs[id]
		distance := c.graph.Distance(q, node.Value)
		results = append(results, ragtypes.VectorSearchResult{
			ID:       id,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    distanceToScore(distance, s.cfg.Metric),
		})
	}
	return results, nil
}

// DeleteDocuments removes ids from collection via lazy deletion.
func (s *HNSWStore) DeleteDocuments(ctx context.Context, collection string, ids []string) error {
	c := s.collection(collection)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if key, exists := c.idMap[id]; exists {
			delete(c.keyMap, key)
			delete(c.idMap, id)
			delete(c.docs, id)
		}
	}
	return nil
}

// DeleteAll drops an entire collection.
func (s *HNSWStore) DeleteAll(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// ListCollections reports every known collection and its live document
// count (lazily-deleted entries are excluded).
func (s *HNSWStore) ListCollections(ctx context.Context) ([]ragtypes.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ragtypes.CollectionInfo, 0, len(s.collections))
	for name, c := range s.collections {
		c.mu.RLock()
		count := len(c.idMap)
		c.mu.RUnlock()
		if count == 0 {
			continue
		}
		out = append(out, ragtypes.CollectionInfo{Name: name, Count: count})
	}
	return out, nil
}

// persistedCollection is the gob-serializable snapshot of a
// collectionIndex's ID mappings and documents.
type persistedCollection struct {
	IDMap      map[string]uint64
	Docs       map[string]ragtypes.VectorDocument
	NextKey    uint64
	Dimensions int
}

// SaveCollection persists collection's graph and mappings under dir,
// using the teacher's atomic temp-file-then-rename pattern.
func (s *HNSWStore) SaveCollection(collection, dir string) error {
	c := s.collection(collection)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorstore: create dir: %w", err)
	}

	graphPath := filepath.Join(dir, collection+".hnsw")
	tmpGraphPath := graphPath + ".tmp"
	f, err := os.Create(tmpGraphPath)
	if err != nil {
		return fmt.Errorf("vectorstore: create graph file: %w", err)
	}
	if err := c.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpGraphPath)
		return fmt.Errorf("vectorstore: export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpGraphPath)
		return fmt.Errorf("vectorstore: close graph file: %w", err)
	}
	if err := os.Rename(tmpGraphPath, graphPath); err != nil {
		os.Remove(tmpGraphPath)
		return fmt.Errorf("vectorstore: rename graph file: %w", err)
	}

	metaPath := filepath.Join(dir, collection+".meta")
	tmpMetaPath := metaPath + ".tmp"
	metaFile, err := os.Create(tmpMetaPath)
	if err != nil {
		return fmt.Errorf("vectorstore: create meta file: %w", err)
	}
	meta := persistedCollection{IDMap: c.idMap, Docs: c.docs, NextKey: c.nextKey, Dimensions: c.dimensions}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		metaFile.Close()
		os.Remove(tmpMetaPath)
		return fmt.Errorf("vectorstore: encode meta: %w", err)
	}
	if err := metaFile.Close(); err != nil {
		os.Remove(tmpMetaPath)
		return fmt.Errorf("vectorstore: close meta file: %w", err)
	}
	return os.Rename(tmpMetaPath, metaPath)
}

// LoadCollection restores a collection's graph and mappings from dir.
func (s *HNSWStore) LoadCollection(collection, dir string) error {
	metaPath := filepath.Join(dir, collection+".meta")
	metaFile, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("vectorstore: open meta file: %w", err)
	}
	defer metaFile.Close()

	var meta persistedCollection
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("vectorstore: decode meta: %w", err)
	}

	c := newCollectionIndex(s.cfg)
	c.idMap = meta.IDMap
	c.docs = meta.Docs
	c.nextKey = meta.NextKey
	c.dimensions = meta.Dimensions
	c.keyMap = make(map[uint64]string, len(c.idMap))
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	graphPath := filepath.Join(dir, collection+".hnsw")
	graphFile, err := os.Open(graphPath)
	if err != nil {
		return fmt.Errorf("vectorstore: open graph file: %w", err)
	}
	defer graphFile.Close()

	if err := c.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("vectorstore: import graph: %w", err)
	}

	s.mu.Lock()
	s.collections[collection] = c
	s.mu.Unlock()
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a distance into a [0, 1]-ish similarity score.
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default: // cos
		return 1.0 - float64(distance)/2.0
	}
}

var _ ragtypes.VectorStore = (*HNSWStore)(nil)
