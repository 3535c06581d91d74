package rerank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func doc(id, content string, score float64) ragtypes.ScoredDoc {
	return ragtypes.ScoredDoc{ID: id, Content: content, OriginalScore: score}
}

func TestRerank_HeuristicDefaultStrategy(t *testing.T) {
	r := New()
	docs := []ragtypes.ScoredDoc{
		doc("d1", "the quick brown fox jumps over the lazy dog", 0.5),
		doc("d2", "completely unrelated content about cars", 0.9),
	}
	out := r.Rerank(context.Background(), "quick fox", docs, Config{Strategy: ragtypes.RerankHeuristic})
	require.Len(t, out, 2)
	assert.Equal(t, "d1", out[0].ID)
}

func TestRerank_HeuristicExactPhraseBoost(t *testing.T) {
	r := New()
	docs := []ragtypes.ScoredDoc{
		doc("d1", "this document contains machine learning basics", 0.1),
		doc("d2", "random filler text with no overlap at all here", 0.1),
	}
	out := r.Rerank(context.Background(), "machine learning", docs, Config{Strategy: ragtypes.RerankHeuristic})
	require.Len(t, out, 2)
	assert.Equal(t, "d1", out[0].ID)
	assert.Greater(t, out[0].RerankScore, out[1].RerankScore)
}

type fakeLM struct {
	response string
	err      error
}

func (f *fakeLM) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	return f.response, f.err
}

func TestRerank_ModelStrategyParsesJSON(t *testing.T) {
	r := New()
	lm := &fakeLM{response: `[{"id":"d1","score":9},{"id":"d2","score":2}]`}
	docs := []ragtypes.ScoredDoc{doc("d1", "alpha", 0.1), doc("d2", "beta", 0.9)}

	out := r.Rerank(context.Background(), "q", docs, Config{Strategy: ragtypes.RerankModel, LM: lm})
	require.Len(t, out, 2)
	assert.Equal(t, "d1", out[0].ID)
	assert.InDelta(t, 0.9, out[0].RerankScore, 1e-9)
}

func TestRerank_ModelStrategyFallsBackOnParseFailure(t *testing.T) {
	r := New()
	lm := &fakeLM{response: "not json at all"}
	docs := []ragtypes.ScoredDoc{doc("d1", "the target phrase appears here", 0.2)}

	out := r.Rerank(context.Background(), "target phrase", docs, Config{Strategy: ragtypes.RerankModel, LM: lm})
	require.Len(t, out, 1)
	// Falls back to heuristic rather than erroring.
	assert.Greater(t, out[0].RerankScore, 0.0)
}

func TestRerank_ModelStrategyFallsBackOnLMError(t *testing.T) {
	r := New()
	lm := &fakeLM{err: errors.New("boom")}
	docs := []ragtypes.ScoredDoc{doc("d1", "hello world", 0.5)}

	out := r.Rerank(context.Background(), "hello", docs, Config{Strategy: ragtypes.RerankModel, LM: lm})
	require.Len(t, out, 1)
}

type fakeExternal struct {
	scores []ExternalScore
	err    error
}

func (f *fakeExternal) Rerank(ctx context.Context, query string, docs []string, topN int) ([]ExternalScore, error) {
	return f.scores, f.err
}

func TestRerank_ExternalStrategyUsesRelevanceScores(t *testing.T) {
	r := New()
	ext := &fakeExternal{scores: []ExternalScore{{Index: 0, RelevanceScore: 0.2}, {Index: 1, RelevanceScore: 0.95}}}
	docs := []ragtypes.ScoredDoc{doc("d1", "a", 0.5), doc("d2", "b", 0.5)}

	out := r.Rerank(context.Background(), "q", docs, Config{Strategy: ragtypes.RerankExternal, External: ext})
	require.Len(t, out, 2)
	assert.Equal(t, "d2", out[0].ID)
}

func TestRerank_ExternalStrategyFallsBackOnError(t *testing.T) {
	r := New()
	ext := &fakeExternal{err: errors.New("unavailable")}
	docs := []ragtypes.ScoredDoc{doc("d1", "the exact query text", 0.1)}

	out := r.Rerank(context.Background(), "the exact query text", docs, Config{Strategy: ragtypes.RerankExternal, External: ext})
	require.Len(t, out, 1)
}

func TestRerank_MMRPrefersDiverseDocuments(t *testing.T) {
	r := New()
	docs := []ragtypes.ScoredDoc{
		doc("d1", "a", 0.9),
		doc("d2", "b", 0.8), // near-duplicate of d1
		doc("d3", "c", 0.5), // distinct
	}
	cfg := Config{
		Strategy:       ragtypes.RerankMMR,
		QueryEmbedding: []float32{1, 0},
		DocEmbeddings: map[string][]float32{
			"d1": {1, 0},
			"d2": {0.99, 0.01},
			"d3": {0, 1},
		},
		MMRLambda: 0.3,
	}
	out := r.Rerank(context.Background(), "q", docs, cfg)
	require.Len(t, out, 3)
	assert.Equal(t, "d1", out[0].ID)
	// d3 should rank ahead of the near-duplicate d2 due to diversity.
	assert.Equal(t, "d3", out[1].ID)
}

func TestRerank_MMRFallsBackWithoutEmbeddings(t *testing.T) {
	r := New()
	docs := []ragtypes.ScoredDoc{doc("d1", "plain", 0.5)}
	out := r.Rerank(context.Background(), "q", docs, Config{Strategy: ragtypes.RerankMMR})
	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].RerankScore)
}

func TestFilterByRelevance_DropsBelowThreshold(t *testing.T) {
	docs := []ragtypes.RerankedDoc{
		{ScoredDoc: ragtypes.ScoredDoc{ID: "a", RerankScore: 0.9}},
		{ScoredDoc: ragtypes.ScoredDoc{ID: "b", RerankScore: 0.1}},
	}
	out := FilterByRelevance(docs, 0.5)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestBoostByMetadata_MultipliesMatchingDocs(t *testing.T) {
	docs := []ragtypes.RerankedDoc{
		{ScoredDoc: ragtypes.ScoredDoc{ID: "a", RerankScore: 0.5, Metadata: ragtypes.Metadata{"source": ragtypes.StringScalar("trusted")}}},
		{ScoredDoc: ragtypes.ScoredDoc{ID: "b", RerankScore: 0.5, Metadata: ragtypes.Metadata{"source": ragtypes.StringScalar("other")}}},
	}
	out := BoostByMetadata(docs, []MetadataBoostRule{{Field: "source", Value: "trusted", Factor: 2.0}})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.InDelta(t, 1.0, out[0].RerankScore, 1e-9)
}

func TestBoostByRecency_BoostsWithinMaxAge(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour).Format(time.RFC3339)
	stale := now.Add(-365 * 24 * time.Hour).Format(time.RFC3339)

	docs := []ragtypes.RerankedDoc{
		{ScoredDoc: ragtypes.ScoredDoc{ID: "a", RerankScore: 0.5, Metadata: ragtypes.Metadata{"date": ragtypes.StringScalar(recent)}}},
		{ScoredDoc: ragtypes.ScoredDoc{ID: "b", RerankScore: 0.5, Metadata: ragtypes.Metadata{"date": ragtypes.StringScalar(stale)}}},
	}
	out := BoostByRecency(docs, "date", 48*time.Hour, 1.5, now)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.InDelta(t, 0.75, out[0].RerankScore, 1e-9)
}
