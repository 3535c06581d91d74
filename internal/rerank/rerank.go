// Package rerank implements the post-fusion reranker: a heuristic
// no-external-calls strategy, a language-model-scored strategy, an
// external rerank-API strategy, and an MMR diversity strategy, plus
// shared post-processing filters. The model and external strategies
// degrade to the heuristic strategy on failure and MMR degrades to
// passthrough; reranking never raises an error.
package rerank

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/internal/tokenizer"
)

// HeuristicWeights are the component weights for the heuristic strategy.
type HeuristicWeights struct {
	Exact    float64
	Overlap  float64
	Position float64
	Length   float64
}

// DefaultHeuristicWeights returns spec.md §4.5's default weights.
func DefaultHeuristicWeights() HeuristicWeights {
	return HeuristicWeights{Exact: 0.4, Overlap: 0.3, Position: 0.2, Length: 0.1}
}

// ExternalRanker scores documents via a remote rerank API.
type ExternalRanker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]ExternalScore, error)
}

// ExternalScore is a single document's score from an ExternalRanker.
type ExternalScore struct {
	Index          int
	RelevanceScore float64
}

// MetadataBoostRule boosts documents whose metadata field matches value.
type MetadataBoostRule struct {
	Field  string
	Value  string
	Factor float64
}

// Config selects a reranking strategy and its parameters.
type Config struct {
	Strategy  ragtypes.RerankStrategy
	Weights   HeuristicWeights
	LM        ragtypes.LanguageModel
	External  ExternalRanker
	MMRLambda float64 // default 0.7
	// QueryEmbedding/DocEmbeddings are required for RerankMMR.
	QueryEmbedding []float32
	DocEmbeddings  map[string][]float32
}

// Reranker implements the spec's rerank(query, docs, config) contract.
type Reranker struct {
	tok *tokenizer.Tokenizer
}

// New builds a Reranker using the default tokenizer for term-overlap
// scoring.
func New() *Reranker {
	return &Reranker{tok: tokenizer.New(nil)}
}

// Rerank scores and reorders docs per cfg.Strategy. It never returns an
// error: model and external failures fall back to the heuristic
// strategy, and MMR failures to the original scores.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []ragtypes.ScoredDoc, cfg Config) []ragtypes.RerankedDoc {
	switch cfg.Strategy {
	case ragtypes.RerankModel:
		if out, ok := r.rerankModel(ctx, query, docs, cfg); ok {
			return out
		}
		return r.rerankHeuristic(query, docs, cfg.Weights)
	case ragtypes.RerankExternal:
		if out, ok := r.rerankExternal(ctx, query, docs, cfg); ok {
			return out
		}
		return r.rerankHeuristic(query, docs, cfg.Weights)
	case ragtypes.RerankMMR:
		if out, ok := r.rerankMMR(query, docs, cfg); ok {
			return out
		}
		return passthrough(docs)
	default:
		return r.rerankHeuristic(query, docs, cfg.Weights)
	}
}

func passthrough(docs []ragtypes.ScoredDoc) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, len(docs))
	for i, d := range docs {
		rd := ragtypes.RerankedDoc{ScoredDoc: d}
		rd.RerankScore = d.OriginalScore
		out[i] = rd
	}
	return out
}

// rerankHeuristic implements spec.md §4.5's no-external-calls formula.
func (r *Reranker) rerankHeuristic(query string, docs []ragtypes.ScoredDoc, weights HeuristicWeights) []ragtypes.RerankedDoc {
	if weights == (HeuristicWeights{}) {
		weights = DefaultHeuristicWeights()
	}
	queryTerms := r.tok.Tokenize(query)
	queryLower := strings.ToLower(strings.TrimSpace(query))

	result := make([]ragtypes.RerankedDoc, 0, len(docs))
	for _, d := range docs {
		content := d.Content
		contentLower := strings.ToLower(content)

		exactMatch := 0.0
		if queryLower != "" && strings.Contains(contentLower, queryLower) {
			exactMatch = 1.0
		}

		docTerms := r.tok.Tokenize(content)
		overlap := termOverlap(queryTerms, docTerms)

		positionBoost := 0.0
		if pos := strings.Index(contentLower, queryLower); queryLower != "" && pos >= 0 {
			positionBoost = 1 - math.Min(float64(pos)/500.0, 1.0)
		}

		lengthPenalty := 1 - math.Min(math.Abs(float64(len(content))-500.0)/2000.0, 0.5)

		score := weights.Exact*exactMatch + weights.Overlap*overlap + weights.Position*positionBoost + weights.Length*lengthPenalty

		rd := ragtypes.RerankedDoc{ScoredDoc: d}
		rd.RerankScore = score
		result = append(result, rd)
	}

	sortByRerankScoreDesc(result)
	return result
}

func termOverlap(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}
	querySet := make(map[string]struct{}, len(queryTerms))
	for _, t := range queryTerms {
		querySet[t] = struct{}{}
	}
	intersect := 0
	for t := range querySet {
		if _, ok := docSet[t]; ok {
			intersect++
		}
	}
	return float64(intersect) / float64(len(querySet))
}

type modelScore struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation,omitempty"`
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// rerankModel asks the language model for a JSON score list. Returns
// ok=false on any parse or call failure, signaling the caller to fall
// back to the heuristic strategy.
func (r *Reranker) rerankModel(ctx context.Context, query string, docs []ragtypes.ScoredDoc, cfg Config) ([]ragtypes.RerankedDoc, bool) {
	if cfg.LM == nil {
		return nil, false
	}

	var b strings.Builder
	b.WriteString("Score each document's relevance to the query on a 0-10 scale.\n")
	b.WriteString("Query: " + query + "\n\n")
	for _, d := range docs {
		b.WriteString("id: " + d.ID + "\n")
		b.WriteString(truncate(d.Content, 500) + "\n\n")
	}
	b.WriteString(`Respond with a JSON array: [{"id": "...", "score": 0..10, "explanation": "..."}]`)

	raw, err := cfg.LM.Generate(ctx, b.String(), 0)
	if err != nil {
		return nil, false
	}

	match := jsonArrayPattern.FindString(raw)
	if match == "" {
		return nil, false
	}
	var scores []modelScore
	if err := json.Unmarshal([]byte(match), &scores); err != nil {
		return nil, false
	}

	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.ID] = s.Score / 10.0
	}

	result := make([]ragtypes.RerankedDoc, 0, len(docs))
	for _, d := range docs {
		score, ok := byID[d.ID]
		if !ok {
			score = d.OriginalScore
		}
		rd := ragtypes.RerankedDoc{ScoredDoc: d}
		rd.RerankScore = score
		result = append(result, rd)
	}
	sortByRerankScoreDesc(result)
	return result, true
}

func (r *Reranker) rerankExternal(ctx context.Context, query string, docs []ragtypes.ScoredDoc, cfg Config) ([]ragtypes.RerankedDoc, bool) {
	if cfg.External == nil {
		return nil, false
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	scores, err := cfg.External.Rerank(ctx, query, texts, len(docs))
	if err != nil {
		return nil, false
	}

	byIndex := make(map[int]float64, len(scores))
	for _, s := range scores {
		byIndex[s.Index] = s.RelevanceScore
	}

	result := make([]ragtypes.RerankedDoc, 0, len(docs))
	for i, d := range docs {
		score, ok := byIndex[i]
		if !ok {
			score = d.OriginalScore
		}
		rd := ragtypes.RerankedDoc{ScoredDoc: d}
		rd.RerankScore = score
		result = append(result, rd)
	}
	sortByRerankScoreDesc(result)
	return result, true
}

// rerankMMR implements Maximal Marginal Relevance diversity selection.
func (r *Reranker) rerankMMR(_ string, docs []ragtypes.ScoredDoc, cfg Config) ([]ragtypes.RerankedDoc, bool) {
	if cfg.QueryEmbedding == nil || cfg.DocEmbeddings == nil {
		return nil, false
	}
	lambda := cfg.MMRLambda
	if lambda == 0 {
		lambda = 0.7
	}

	remaining := make([]ragtypes.ScoredDoc, len(docs))
	copy(remaining, docs)

	selected := make([]ragtypes.RerankedDoc, 0, len(docs))
	selectedEmbeddings := make([][]float32, 0, len(docs))

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, d := range remaining {
			embedding, ok := cfg.DocEmbeddings[d.ID]
			if !ok {
				continue
			}
			sim := cosineSim(cfg.QueryEmbedding, embedding)
			maxSimSelected := 0.0
			for _, sel := range selectedEmbeddings {
				if s := cosineSim(embedding, sel); s > maxSimSelected {
					maxSimSelected = s
				}
			}
			mmrScore := lambda*sim - (1-lambda)*maxSimSelected
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		chosen := remaining[bestIdx]
		rd := ragtypes.RerankedDoc{ScoredDoc: chosen}
		rd.RerankScore = bestScore
		selected = append(selected, rd)
		selectedEmbeddings = append(selectedEmbeddings, cfg.DocEmbeddings[chosen.ID])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected, true
}

func cosineSim(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sortByRerankScoreDesc(docs []ragtypes.RerankedDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].RerankScore > docs[j].RerankScore
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FilterByRelevance drops every doc with RerankScore below minScore.
func FilterByRelevance(docs []ragtypes.RerankedDoc, minScore float64) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, 0, len(docs))
	for _, d := range docs {
		if d.RerankScore >= minScore {
			out = append(out, d)
		}
	}
	return out
}

// BoostByMetadata multiplies RerankScore by rule.Factor for every doc
// whose metadata field matches rule.Value, then re-sorts.
func BoostByMetadata(docs []ragtypes.RerankedDoc, rules []MetadataBoostRule) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, len(docs))
	copy(out, docs)
	for i, d := range out {
		for _, rule := range rules {
			if d.Metadata.GetString(rule.Field) == rule.Value {
				out[i].RerankScore *= rule.Factor
			}
		}
	}
	sortByRerankScoreDesc(out)
	return out
}

// BoostByRecency multiplies RerankScore by factor for docs whose
// dateField metadata value is within maxAge of now, then re-sorts.
func BoostByRecency(docs []ragtypes.RerankedDoc, dateField string, maxAge time.Duration, factor float64, now time.Time) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, len(docs))
	copy(out, docs)
	for i, d := range out {
		raw := d.Metadata.GetString(dateField)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if now.Sub(t) <= maxAge {
			out[i].RerankScore *= factor
		}
	}
	sortByRerankScoreDesc(out)
	return out
}
