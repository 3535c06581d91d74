// Package adaptive implements feedback-driven score boosting: explicit
// and implicit relevance signals recorded per (query, doc) pair decay
// over time and nudge future rerank scores for the same query.
package adaptive

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

const (
	defaultDecayFactor     = 0.95
	defaultMinFeedbackCount = 3
	maxEntriesPerQuery      = 100
	maxTrackedQueryHashes   = 10_000
	similarDocFallbackWeight = 0.5
)

// SourceKeyFunc extracts the "same source document" key from a doc id,
// used by the similar-doc fallback when no direct feedback exists for a
// doc id. Injectable so callers whose doc id convention differs from
// "source:chunk" can override the default.
type SourceKeyFunc func(docID string) string

// DefaultSourceKeyFunc splits on the first ":" and returns the prefix,
// the heuristic spec.md §4.6 recommends for "same source document".
func DefaultSourceKeyFunc(docID string) string {
	return strings.SplitN(docID, ":", 2)[0]
}

// Config tunes the adaptive reranker.
type Config struct {
	DecayFactor      float64
	MinFeedbackCount int
	FeedbackWeight   float64 // clamped to [0, 1]
	SourceKeyFunc    SourceKeyFunc
	Now              func() time.Time // injectable clock for tests
}

// DefaultConfig returns spec.md §4.6's defaults.
func DefaultConfig() Config {
	return Config{
		DecayFactor:      defaultDecayFactor,
		MinFeedbackCount: defaultMinFeedbackCount,
		FeedbackWeight:   0.3,
		SourceKeyFunc:    DefaultSourceKeyFunc,
		Now:              time.Now,
	}
}

// Reranker applies learned relevance boosts on top of another ranking.
type Reranker struct {
	cfg Config

	mu      sync.Mutex
	entries map[string][]ragtypes.FeedbackEntry // keyed by query hash
	order   []string                            // insertion order of query hashes, for the global cap
}

// New builds a Reranker. A zero Config is replaced with DefaultConfig.
func New(cfg Config) *Reranker {
	if cfg.SourceKeyFunc == nil {
		cfg.SourceKeyFunc = DefaultSourceKeyFunc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DecayFactor == 0 {
		cfg.DecayFactor = defaultDecayFactor
	}
	if cfg.MinFeedbackCount == 0 {
		cfg.MinFeedbackCount = defaultMinFeedbackCount
	}
	if cfg.FeedbackWeight == 0 {
		cfg.FeedbackWeight = DefaultConfig().FeedbackWeight
	}
	if cfg.FeedbackWeight < 0 {
		cfg.FeedbackWeight = 0
	}
	if cfg.FeedbackWeight > 1 {
		cfg.FeedbackWeight = 1
	}
	return &Reranker{cfg: cfg, entries: make(map[string][]ragtypes.FeedbackEntry)}
}

// QueryHash hashes a query by its lowercase-trimmed bytes, per spec.md
// §4.6's domain-stable hashing requirement.
func QueryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// RecordFeedback appends a relevance observation for (query, docID). If
// the query's entry list is at capacity, the oldest entry is dropped. If
// the number of distinct tracked queries exceeds the global cap, the
// least recently added query's entries are dropped entirely.
func (r *Reranker) RecordFeedback(query, docID string, relevance float64, action ragtypes.FeedbackAction) {
	hash := QueryHash(query)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[hash]; !exists {
		r.order = append(r.order, hash)
		if len(r.order) > maxTrackedQueryHashes {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.entries, oldest)
		}
	}

	list := r.entries[hash]
	list = append(list, ragtypes.FeedbackEntry{
		QueryHash: hash,
		DocID:     docID,
		Relevance: relevance,
		Timestamp: r.cfg.Now(),
		Action:    action,
	})
	if len(list) > maxEntriesPerQuery {
		list = list[len(list)-maxEntriesPerQuery:]
	}
	r.entries[hash] = list
}

// boost computes the aggregate boost for (query_hash, doc_id) per
// spec.md §4.6's weighted decay formula. Returns (weightedSum,
// totalWeight); the caller divides the two to get the boost.
func (r *Reranker) boost(hash, docID string, now time.Time) (float64, float64) {
	var weightedSum, totalWeight float64
	for _, e := range r.entries[hash] {
		if e.DocID != docID {
			continue
		}
		days := now.Sub(e.Timestamp).Hours() / 24
		decay := math.Pow(r.cfg.DecayFactor, days)
		weight := decay * e.Action.Weight()
		weightedSum += (e.Relevance - 0.5) * 2 * weight
		totalWeight += weight
	}
	return weightedSum, totalWeight
}

// RerankWithLearning applies the learned boost to each doc's score when
// the query has accumulated at least MinFeedbackCount entries. Docs
// without direct feedback fall back to similar-doc feedback (same source
// prefix) at half weight.
func (r *Reranker) RerankWithLearning(query string, docs []ragtypes.RerankedDoc) []ragtypes.RerankedDoc {
	hash := QueryHash(query)
	now := r.cfg.Now()

	r.mu.Lock()
	entries := r.entries[hash]
	count := len(entries)
	r.mu.Unlock()

	out := make([]ragtypes.RerankedDoc, len(docs))
	copy(out, docs)

	if count < r.cfg.MinFeedbackCount {
		return out
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range out {
		weightedSum, totalWeight := r.boost(hash, d.ID, now)
		appliedWeight := 1.0
		if totalWeight == 0 {
			sourceKey := r.cfg.SourceKeyFunc(d.ID)
			for _, e := range r.entries[hash] {
				if r.cfg.SourceKeyFunc(e.DocID) != sourceKey {
					continue
				}
				days := now.Sub(e.Timestamp).Hours() / 24
				decay := math.Pow(r.cfg.DecayFactor, days)
				weightedSum += (e.Relevance-0.5) * 2 * decay * e.Action.Weight()
				totalWeight += decay * e.Action.Weight()
			}
			appliedWeight = similarDocFallbackWeight
		}
		if totalWeight == 0 {
			continue
		}
		boost := (weightedSum / totalWeight) * appliedWeight
		out[i].RerankScore = d.RerankScore * (1 + boost*r.cfg.FeedbackWeight)
	}

	return out
}
