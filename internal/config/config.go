// Package config provides the layered configuration for the retrieval
// core: hardcoded defaults, optional YAML file, then environment variable
// overrides — the same precedence order the teacher's internal/config
// package applies to its own Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DedupMode selects how index_document handles a content fingerprint
// that already exists in the collection.
type DedupMode string

const (
	DedupSkip   DedupMode = "skip"
	DedupUpsert DedupMode = "upsert"
)

// FallbackMode selects what corrective RAG does when every candidate is
// graded below relevance_threshold.
type FallbackMode string

const (
	FallbackNone           FallbackMode = "none"
	FallbackRelaxThreshold FallbackMode = "relax_threshold"
	FallbackKeepBest       FallbackMode = "keep_best"
)

// HybridSearchConfig controls multi-list fusion weights and which lists
// participate.
type HybridSearchConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	SparseWeight  float64 `yaml:"sparse_weight" json:"sparse_weight"`
	LateWeight    float64 `yaml:"late_weight" json:"late_weight"`
	EnableSparse  bool    `yaml:"enable_sparse" json:"enable_sparse"`
	EnableLate    bool    `yaml:"enable_late" json:"enable_late"`
}

// RerankingConfig controls post-fusion reranking.
type RerankingConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	UseModel        bool   `yaml:"use_model" json:"use_model"`
	ExternalAPIKey  string `yaml:"external_api_key,omitempty" json:"external_api_key,omitempty"`
}

// QueryExpansionConfig controls pre-search query expansion.
type QueryExpansionConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	MaxVariants int  `yaml:"max_variants" json:"max_variants"`
	UseHyDE     bool `yaml:"use_hyde" json:"use_hyde"`
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	MaxSize int  `yaml:"max_size" json:"max_size"`
	TTLMs   int  `yaml:"ttl_ms" json:"ttl_ms"`
	Persist bool `yaml:"persist" json:"persist"`
}

// DedupConfig controls index-time content-fingerprint deduplication.
type DedupConfig struct {
	Enabled bool      `yaml:"enabled" json:"enabled"`
	Mode    DedupMode `yaml:"mode" json:"mode"`
}

// AdaptiveRerankingConfig controls feedback-driven score boosting.
type AdaptiveRerankingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	FeedbackWeight float64 `yaml:"feedback_weight" json:"feedback_weight"`
}

// CorrectiveRAGConfig controls relevance grading and fallback behavior.
type CorrectiveRAGConfig struct {
	Enabled            bool         `yaml:"enabled" json:"enabled"`
	RelevanceThreshold float64      `yaml:"relevance_threshold" json:"relevance_threshold"`
	UseModel           bool         `yaml:"use_model" json:"use_model"`
	Fallback           FallbackMode `yaml:"fallback" json:"fallback"`
	// MinDocs is the minimum surviving candidate count below which the
	// fallback strategy engages. Not separately named in spec.md's
	// configuration enumeration; defaulted to 1 so keep_best always has
	// at least one document to keep, per spec.md §8 Scenario F.
	MinDocs int `yaml:"min_docs" json:"min_docs"`
}

// IterativeRetrievalConfig controls multi-pass retrieval refinement.
type IterativeRetrievalConfig struct {
	Enabled              bool    `yaml:"enabled" json:"enabled"`
	MaxIterations        int     `yaml:"max_iterations" json:"max_iterations"`
	SufficiencyThreshold float64 `yaml:"sufficiency_threshold" json:"sufficiency_threshold"`
	// MinRelevant is the minimum count of above-threshold documents that
	// counts as "sufficient", below which another refinement pass runs.
	MinRelevant int `yaml:"min_relevant" json:"min_relevant"`
}

// ContextManagerConfig selects how retrieved documents are assembled into
// a formatted context window: the token-budgeted DynamicContextManager,
// or a straight concatenation formatter when disabled.
type ContextManagerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// CitationsConfig controls whether a citation list is attached to a
// retrieval result.
type CitationsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// BatcherConfig tunes the embedding batcher. Spec.md §4.3 names these
// knobs without enumerating them in §6's configuration table; they are
// carried here as an ambient supplement so every Embedding Batcher
// parameter is reachable through the same layered configuration as
// everything else.
type BatcherConfig struct {
	BatchSize          int `yaml:"batch_size" json:"batch_size"`
	FlushIntervalMs    int `yaml:"flush_interval_ms" json:"flush_interval_ms"`
	MaxParallelBatches int `yaml:"max_parallel_batches" json:"max_parallel_batches"`
	RetryAttempts      int `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelayMs       int `yaml:"retry_delay_ms" json:"retry_delay_ms"`
}

// Config is the complete retrieval core configuration. It mirrors
// spec.md §6's configuration enumeration field for field, plus the
// ambient BatcherConfig supplement.
type Config struct {
	HybridSearch       HybridSearchConfig       `yaml:"hybrid_search" json:"hybrid_search"`
	Reranking          RerankingConfig          `yaml:"reranking" json:"reranking"`
	QueryExpansion     QueryExpansionConfig     `yaml:"query_expansion" json:"query_expansion"`
	Cache              CacheConfig              `yaml:"cache" json:"cache"`
	Dedup              DedupConfig              `yaml:"dedup" json:"dedup"`
	AdaptiveReranking  AdaptiveRerankingConfig  `yaml:"adaptive_reranking" json:"adaptive_reranking"`
	CorrectiveRAG      CorrectiveRAGConfig      `yaml:"corrective_rag" json:"corrective_rag"`
	IterativeRetrieval IterativeRetrievalConfig `yaml:"iterative_retrieval" json:"iterative_retrieval"`
	ContextManager     ContextManagerConfig     `yaml:"context_manager" json:"context_manager"`
	Citations          CitationsConfig          `yaml:"citations" json:"citations"`
	Batcher            BatcherConfig            `yaml:"batcher" json:"batcher"`

	TopK               int     `yaml:"top_k" json:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	MaxContextLength    int     `yaml:"max_context_length" json:"max_context_length"`
	// MaxQueryLength bounds sanitize_query's truncation step. Not given
	// an explicit value in spec.md §6; 2000 chars is chosen as generous
	// for natural-language queries while bounding regex/tokenization
	// cost on adversarial input, recorded as an open-question decision.
	MaxQueryLength int `yaml:"max_query_length" json:"max_query_length"`
}

// New returns the configuration with spec.md §6's stated defaults.
func New() *Config {
	return &Config{
		HybridSearch: HybridSearchConfig{
			Enabled:       true,
			VectorWeight:  0.5,
			KeywordWeight: 0.5,
			SparseWeight:  0.3,
			LateWeight:    0.2,
			EnableSparse:  false,
			EnableLate:    false,
		},
		Reranking: RerankingConfig{
			Enabled:  true,
			UseModel: false,
		},
		QueryExpansion: QueryExpansionConfig{
			Enabled:     false,
			MaxVariants: 3,
			UseHyDE:     false,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxSize: 100,
			TTLMs:   300_000,
			Persist: false,
		},
		Dedup: DedupConfig{
			Enabled: false,
			Mode:    DedupSkip,
		},
		AdaptiveReranking: AdaptiveRerankingConfig{
			Enabled:        false,
			FeedbackWeight: 0.3,
		},
		CorrectiveRAG: CorrectiveRAGConfig{
			Enabled:            false,
			RelevanceThreshold: 0.4,
			UseModel:           false,
			Fallback:           FallbackNone,
			MinDocs:            1,
		},
		IterativeRetrieval: IterativeRetrievalConfig{
			Enabled:              false,
			MaxIterations:        2,
			SufficiencyThreshold: 0.5,
			MinRelevant:          1,
		},
		ContextManager: ContextManagerConfig{Enabled: true},
		Citations:      CitationsConfig{Enabled: true},
		Batcher: BatcherConfig{
			BatchSize:          32,
			FlushIntervalMs:    50,
			MaxParallelBatches: 4,
			RetryAttempts:      3,
			RetryDelayMs:       200,
		},
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxContextLength:    4000,
		MaxQueryLength:      2000,
	}
}

// Load builds a Config from defaults, an optional YAML file at path, and
// RAGCORE_* environment variable overrides, in that order of precedence —
// the same three-tier scheme the teacher applies via its own Load(dir).
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// WriteYAML serializes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides applies RAGCORE_* environment variable overrides,
// highest precedence, mirroring the teacher's AMANMCP_* scheme.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAGCORE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TopK = n
		}
	}
	if v := os.Getenv("RAGCORE_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("RAGCORE_MAX_CONTEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxContextLength = n
		}
	}
	if v := os.Getenv("RAGCORE_HYBRID_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.HybridSearch.VectorWeight = f
		}
	}
	if v := os.Getenv("RAGCORE_HYBRID_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.HybridSearch.KeywordWeight = f
		}
	}
	if v := os.Getenv("RAGCORE_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RAGCORE_RERANK_EXTERNAL_API_KEY"); v != "" {
		c.Reranking.ExternalAPIKey = v
	}
}

// Validate checks invariants the pipeline depends on holding.
func (c *Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", c.SimilarityThreshold)
	}
	if c.MaxContextLength <= 0 {
		return fmt.Errorf("max_context_length must be positive, got %d", c.MaxContextLength)
	}
	if c.Dedup.Mode != "" && c.Dedup.Mode != DedupSkip && c.Dedup.Mode != DedupUpsert {
		return fmt.Errorf("dedup.mode must be %q or %q, got %q", DedupSkip, DedupUpsert, c.Dedup.Mode)
	}
	switch c.CorrectiveRAG.Fallback {
	case "", FallbackNone, FallbackRelaxThreshold, FallbackKeepBest:
	default:
		return fmt.Errorf("corrective_rag.fallback must be one of %q, %q, %q, got %q",
			FallbackNone, FallbackRelaxThreshold, FallbackKeepBest, c.CorrectiveRAG.Fallback)
	}
	if c.IterativeRetrieval.MaxIterations < 1 {
		return fmt.Errorf("iterative_retrieval.max_iterations must be >= 1, got %d", c.IterativeRetrieval.MaxIterations)
	}
	return nil
}

// Merge overlays non-zero fields of partial onto c, matching the
// pipeline's update_config(partial_config) semantics (spec.md §6): a
// caller supplies a sparse Config and only the fields it sets take
// effect, the same non-zero-value merge discipline the teacher's
// mergeWith uses.
func (c *Config) Merge(partial Config) {
	if partial.HybridSearch.VectorWeight != 0 {
		c.HybridSearch.VectorWeight = partial.HybridSearch.VectorWeight
	}
	if partial.HybridSearch.KeywordWeight != 0 {
		c.HybridSearch.KeywordWeight = partial.HybridSearch.KeywordWeight
	}
	if partial.HybridSearch.SparseWeight != 0 {
		c.HybridSearch.SparseWeight = partial.HybridSearch.SparseWeight
	}
	if partial.HybridSearch.LateWeight != 0 {
		c.HybridSearch.LateWeight = partial.HybridSearch.LateWeight
	}
	if partial.Reranking.ExternalAPIKey != "" {
		c.Reranking.ExternalAPIKey = partial.Reranking.ExternalAPIKey
	}
	if partial.QueryExpansion.MaxVariants != 0 {
		c.QueryExpansion.MaxVariants = partial.QueryExpansion.MaxVariants
	}
	if partial.Cache.MaxSize != 0 {
		c.Cache.MaxSize = partial.Cache.MaxSize
	}
	if partial.Cache.TTLMs != 0 {
		c.Cache.TTLMs = partial.Cache.TTLMs
	}
	if partial.Dedup.Mode != "" {
		c.Dedup.Mode = partial.Dedup.Mode
	}
	if partial.AdaptiveReranking.FeedbackWeight != 0 {
		c.AdaptiveReranking.FeedbackWeight = partial.AdaptiveReranking.FeedbackWeight
	}
	if partial.CorrectiveRAG.RelevanceThreshold != 0 {
		c.CorrectiveRAG.RelevanceThreshold = partial.CorrectiveRAG.RelevanceThreshold
	}
	if partial.CorrectiveRAG.Fallback != "" {
		c.CorrectiveRAG.Fallback = partial.CorrectiveRAG.Fallback
	}
	if partial.IterativeRetrieval.MaxIterations != 0 {
		c.IterativeRetrieval.MaxIterations = partial.IterativeRetrieval.MaxIterations
	}
	if partial.IterativeRetrieval.SufficiencyThreshold != 0 {
		c.IterativeRetrieval.SufficiencyThreshold = partial.IterativeRetrieval.SufficiencyThreshold
	}
	if partial.IterativeRetrieval.MinRelevant != 0 {
		c.IterativeRetrieval.MinRelevant = partial.IterativeRetrieval.MinRelevant
	}
	if partial.CorrectiveRAG.MinDocs != 0 {
		c.CorrectiveRAG.MinDocs = partial.CorrectiveRAG.MinDocs
	}
	if partial.TopK != 0 {
		c.TopK = partial.TopK
	}
	if partial.SimilarityThreshold != 0 {
		c.SimilarityThreshold = partial.SimilarityThreshold
	}
	if partial.MaxContextLength != 0 {
		c.MaxContextLength = partial.MaxContextLength
	}
	if partial.MaxQueryLength != 0 {
		c.MaxQueryLength = partial.MaxQueryLength
	}

	// Boolean toggles: the enabled flags default to zero-value false, so a
	// partial config can only flip them to true; Merge cannot turn a
	// feature off (the teacher's config hits the same "zero value is
	// ambiguous" limit for its own Submodules.Enabled/Compaction.Enabled
	// bools).
	if partial.HybridSearch.Enabled {
		c.HybridSearch.Enabled = true
	}
	if partial.Reranking.Enabled {
		c.Reranking.Enabled = true
	}
	if partial.QueryExpansion.Enabled {
		c.QueryExpansion.Enabled = true
	}
	if partial.Cache.Enabled {
		c.Cache.Enabled = true
	}
	if partial.Dedup.Enabled {
		c.Dedup.Enabled = true
	}
	if partial.AdaptiveReranking.Enabled {
		c.AdaptiveReranking.Enabled = true
	}
	if partial.CorrectiveRAG.Enabled {
		c.CorrectiveRAG.Enabled = true
	}
	if partial.IterativeRetrieval.Enabled {
		c.IterativeRetrieval.Enabled = true
	}
	if partial.HybridSearch.EnableSparse {
		c.HybridSearch.EnableSparse = true
	}
	if partial.HybridSearch.EnableLate {
		c.HybridSearch.EnableLate = true
	}
	if partial.ContextManager.Enabled {
		c.ContextManager.Enabled = true
	}
	if partial.Citations.Enabled {
		c.Citations.Enabled = true
	}
}

// Clone returns a deep copy (the struct has no pointer/slice fields, so a
// value copy suffices).
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
