package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func rdoc(id string, score float64) ragtypes.RerankedDoc {
	return ragtypes.RerankedDoc{ScoredDoc: ragtypes.ScoredDoc{ID: id, RerankScore: score}}
}

func TestRerankWithLearning_NoEffectBelowMinFeedbackCount(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := New(Config{Now: fixedClock(now)})

	r.RecordFeedback("boost", "result-2", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("boost", "result-2", 0.95, ragtypes.ActionExplicit)
	// Only 2 entries recorded; default MinFeedbackCount is 3.

	docs := []ragtypes.RerankedDoc{rdoc("result-0", 0.9), rdoc("result-1", 0.8), rdoc("result-2", 0.7)}
	out := r.RerankWithLearning("boost", docs)
	assert.Equal(t, 0.7, out[2].RerankScore)
}

func TestRerankWithLearning_ScenarioD_BoostAfterThreshold(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := New(Config{Now: fixedClock(now)})

	r.RecordFeedback("boost", "result-2", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("boost", "result-2", 0.95, ragtypes.ActionExplicit)
	r.RecordFeedback("boost", "result-2", 0.9, ragtypes.ActionExplicit)

	docs := []ragtypes.RerankedDoc{
		rdoc("result-0", 0.9),
		rdoc("result-1", 0.8),
		rdoc("result-2", 0.7),
		rdoc("result-3", 0.6),
	}
	out := r.RerankWithLearning("boost", docs)

	idx := -1
	for i, d := range out {
		if d.ID == "result-2" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Greater(t, out[idx].RerankScore, 0.7)
}

func TestBoost_DecaysWithAge(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	recordTime := now.Add(-30 * 24 * time.Hour)
	r := New(Config{Now: fixedClock(recordTime)})
	r.RecordFeedback("q", "d1", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("q", "d1", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("q", "d1", 1.0, ragtypes.ActionExplicit)

	weightedSum, totalWeight := r.boost(QueryHash("q"), "d1", now)
	boost := weightedSum / totalWeight
	// decay(30 days, 0.95) = 0.95^30 ~ 0.215, boost should still be close to
	// 1.0 since relevance=1.0 for all entries regardless of decay (decay
	// cancels out of the ratio when all entries share the same relevance).
	assert.InDelta(t, 1.0, boost, 1e-6)
}

func TestRecordFeedback_CapsEntriesPerQuery(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := New(Config{Now: fixedClock(now)})
	for i := 0; i < maxEntriesPerQuery+10; i++ {
		r.RecordFeedback("q", "d1", 0.5, ragtypes.ActionClick)
	}
	r.mu.Lock()
	count := len(r.entries[QueryHash("q")])
	r.mu.Unlock()
	assert.Equal(t, maxEntriesPerQuery, count)
}

func TestRerankWithLearning_SimilarDocFallbackAtHalfWeight(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	r := New(Config{Now: fixedClock(now), FeedbackWeight: 1.0})

	// Feedback recorded on "source-a:chunk-1", none directly on
	// "source-a:chunk-2" — the fallback should still apply, at half weight.
	r.RecordFeedback("q", "source-a:chunk-1", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("q", "source-a:chunk-1", 1.0, ragtypes.ActionExplicit)
	r.RecordFeedback("q", "source-a:chunk-1", 1.0, ragtypes.ActionExplicit)

	docs := []ragtypes.RerankedDoc{rdoc("source-a:chunk-2", 0.5)}
	out := r.RerankWithLearning("q", docs)
	assert.Greater(t, out[0].RerankScore, 0.5)
}

func TestQueryHash_NormalizesCaseAndWhitespace(t *testing.T) {
	assert.Equal(t, QueryHash("Hello"), QueryHash("  hello  "))
}

func TestDefaultSourceKeyFunc_SplitsOnFirstColon(t *testing.T) {
	assert.Equal(t, "doc1", DefaultSourceKeyFunc("doc1:chunk3"))
	assert.Equal(t, "doc1", DefaultSourceKeyFunc("doc1"))
}
