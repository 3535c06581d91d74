package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// gradingResult is corrective grading's verdict for one retrieval pass.
type gradingResult struct {
	docs         []ragtypes.RerankedDoc
	fallbackUsed bool
}

// gradeAndFilter implements spec.md §4.8 step 8: each document is graded
// against RelevanceThreshold (by an LM when UseModel is set, otherwise by
// its existing rerank score), and if fewer than MinDocs survive, the
// configured Fallback strategy engages, per Scenario F. With fallback
// none the passing documents are returned as they are, even when fewer
// than MinDocs.
func (p *Pipeline) gradeAndFilter(ctx context.Context, query string, docs []ragtypes.RerankedDoc, cfg config.CorrectiveRAGConfig) gradingResult {
	minDocs := cfg.MinDocs
	if minDocs < 1 {
		minDocs = 1
	}

	graded := make([]ragtypes.RerankedDoc, len(docs))
	copy(graded, docs)
	for i := range graded {
		graded[i].RerankScore = p.gradeDoc(ctx, query, graded[i], cfg)
	}

	passing := make([]ragtypes.RerankedDoc, 0, len(graded))
	for _, d := range graded {
		if d.RerankScore >= cfg.RelevanceThreshold {
			passing = append(passing, d)
		}
	}
	if len(passing) >= minDocs {
		return gradingResult{docs: passing, fallbackUsed: false}
	}

	switch cfg.Fallback {
	case config.FallbackKeepBest:
		ranked := make([]ragtypes.RerankedDoc, len(graded))
		copy(ranked, graded)
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].RerankScore > ranked[j].RerankScore })
		if minDocs > len(ranked) {
			minDocs = len(ranked)
		}
		return gradingResult{docs: ranked[:minDocs], fallbackUsed: true}
	case config.FallbackRelaxThreshold:
		return gradingResult{docs: relaxThresholdFilter(graded, cfg.RelevanceThreshold, minDocs), fallbackUsed: true}
	default: // config.FallbackNone
		return gradingResult{docs: passing, fallbackUsed: false}
	}
}

// relaxThresholdFilter implements fallback=relax_threshold: unlike
// keep_best's fixed top-N, it halves RelevanceThreshold and re-runs the
// relevance filter until at least minDocs documents pass or the
// threshold has bottomed out, per spec.md §4.8 step 8 / §6's "rerun with
// a lower threshold" description. The surviving set can hold more than
// minDocs documents, since every document clearing the relaxed threshold
// is kept, not just the top minDocs of them.
func relaxThresholdFilter(graded []ragtypes.RerankedDoc, threshold float64, minDocs int) []ragtypes.RerankedDoc {
	const maxSteps = 20

	t := threshold
	passing := filterByMinScore(graded, t)
	for step := 0; len(passing) < minDocs && step < maxSteps && t > 0; step++ {
		t /= 2
		passing = filterByMinScore(graded, t)
	}
	if len(passing) < minDocs {
		// Threshold has bottomed out at effectively zero; keep whatever
		// clears a zero floor rather than looping forever chasing a
		// minDocs count higher than len(graded) can ever supply.
		passing = filterByMinScore(graded, 0)
	}

	sort.SliceStable(passing, func(i, j int) bool { return passing[i].RerankScore > passing[j].RerankScore })
	return passing
}

func filterByMinScore(docs []ragtypes.RerankedDoc, threshold float64) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, 0, len(docs))
	for _, d := range docs {
		if d.RerankScore >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// gradeDoc scores a single document's relevance to query, preferring an
// LM judgment when configured and available, falling back to the
// document's existing rerank score on any LM failure or malformed
// response, per spec.md §7's "never propagate a parse failure as a
// retrieval error" policy.
func (p *Pipeline) gradeDoc(ctx context.Context, query string, doc ragtypes.RerankedDoc, cfg config.CorrectiveRAGConfig) float64 {
	if !cfg.UseModel || p.lm == nil {
		return doc.RerankScore
	}
	prompt := fmt.Sprintf(
		"Rate how relevant the following document is to the query on a scale from 0.0 to 1.0. "+
			"Respond with only the number.\n\nQuery: %s\n\nDocument:\n%s",
		query, doc.Content,
	)
	resp, err := p.lm.Generate(ctx, prompt, 0)
	if err != nil {
		p.logger.Warn("corrective grading LM call failed, using heuristic score", "error", err)
		return doc.RerankScore
	}
	score, ok := parseRelevanceScore(resp)
	if !ok {
		p.logger.Warn("corrective grading LM response unparseable, using heuristic score", "response", resp)
		return doc.RerankScore
	}
	return score
}

func parseRelevanceScore(resp string) (float64, bool) {
	trimmed := strings.TrimSpace(resp)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Trim(fields[0], ".,"), 64)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}
