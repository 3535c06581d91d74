package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

func gradedDoc(id string, score float64) ragtypes.RerankedDoc {
	return ragtypes.RerankedDoc{ScoredDoc: ragtypes.ScoredDoc{ID: id, RerankScore: score}}
}

// relax_threshold, unlike keep_best, lowers the threshold and returns
// every document that clears the relaxed bar — which can be more or
// fewer than minDocs, not a fixed top-N slice.
func TestRelaxThresholdFilter_ReturnsEveryDocClearingRelaxedThreshold(t *testing.T) {
	docs := []ragtypes.RerankedDoc{
		gradedDoc("high", 0.5),
		gradedDoc("mid-a", 0.1),
		gradedDoc("mid-b", 0.1),
		gradedDoc("low", 0.001),
	}

	// threshold=0.9 fails every doc; minDocs=2 should be satisfied once
	// the threshold has halved down to 0.05625, at which point both mid
	// docs (and "high") clear it -- three results, not exactly minDocs.
	got := relaxThresholdFilter(docs, 0.9, 2)

	require.GreaterOrEqual(t, len(got), 2)
	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	assert.Contains(t, ids, "high")
	assert.Contains(t, ids, "mid-a")
	assert.Contains(t, ids, "mid-b")
	assert.NotContains(t, ids, "low", "threshold should relax just enough to clear minDocs, not all the way to the weakest doc")

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].RerankScore, got[i].RerankScore, "results must stay sorted descending by score")
	}
}

// When even a zero threshold can't produce minDocs (too few candidates
// exist at all), relax_threshold returns everything rather than looping.
func TestRelaxThresholdFilter_FewerCandidatesThanMinDocsReturnsAll(t *testing.T) {
	docs := []ragtypes.RerankedDoc{gradedDoc("only", 0.01)}

	got := relaxThresholdFilter(docs, 0.9, 5)

	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].ID)
}

// gradeAndFilter itself must route keep_best and relax_threshold to
// genuinely different outcomes, not the same branch.
func TestGradeAndFilter_KeepBestAndRelaxThresholdDiffer(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()
	docs := []ragtypes.RerankedDoc{
		gradedDoc("a", 0.5),
		gradedDoc("b", 0.46),
		gradedDoc("c", 0.46),
	}

	keepBestCfg := config.CorrectiveRAGConfig{
		Enabled: true, RelevanceThreshold: 0.9, Fallback: config.FallbackKeepBest, MinDocs: 1,
	}
	keepBest := p.gradeAndFilter(ctx, "q", docs, keepBestCfg)
	require.Len(t, keepBest.docs, 1)
	assert.Equal(t, "a", keepBest.docs[0].ID)
	assert.True(t, keepBest.fallbackUsed)

	relaxCfg := config.CorrectiveRAGConfig{
		Enabled: true, RelevanceThreshold: 0.9, Fallback: config.FallbackRelaxThreshold, MinDocs: 1,
	}
	relaxed := p.gradeAndFilter(ctx, "q", docs, relaxCfg)
	// Unlike keep_best's single document, relaxing the threshold once, to
	// 0.45, lets every one of the three candidates clear it.
	assert.Len(t, relaxed.docs, 3)
	assert.True(t, relaxed.fallbackUsed)
}
