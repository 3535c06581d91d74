package pipeline

import (
	"context"
	"strconv"
	"strings"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
	"github.com/aman-cerp/ragcore/internal/rerank"
)

// expandQuery implements spec.md §4.8 step 5: when query expansion is
// enabled, ask the configured language model for alternate phrasings (and,
// if UseHyDE is set, a hypothetical answer passage) to broaden recall
// across the subsequent multi-variant search. Without a language model it
// falls back to a keyword-only expansion so the step still records
// something useful without fabricating variants.
func (p *Pipeline) expandQuery(ctx context.Context, query string, cfg config.QueryExpansionConfig) *ragtypes.ExpandedQuery {
	if !cfg.Enabled {
		return nil
	}

	expanded := &ragtypes.ExpandedQuery{
		Original: query,
		Keywords: p.tokenizer.Tokenize(query),
	}

	if p.lm == nil {
		return expanded
	}

	maxVariants := cfg.MaxVariants
	if maxVariants <= 0 {
		maxVariants = 3
	}
	prompt := "Generate alternate phrasings of the following search query, one per line, " +
		"preserving its meaning but varying vocabulary and structure. Produce no more than " +
		strconv.Itoa(maxVariants) + " lines.\n\nQuery: " + query
	if resp, err := p.lm.Generate(ctx, prompt, 0.5); err == nil {
		expanded.Variants = parseLines(resp, maxVariants)
	} else {
		p.logger.Warn("query expansion LM call failed", "error", err)
	}

	if cfg.UseHyDE {
		hydePrompt := "Write a short hypothetical passage that would directly answer this query, " +
			"as if it were an excerpt from a relevant document.\n\nQuery: " + query
		if resp, err := p.lm.Generate(ctx, hydePrompt, 0.5); err == nil {
			expanded.HypotheticalPassage = strings.TrimSpace(resp)
		} else {
			p.logger.Warn("HyDE passage generation failed", "error", err)
		}
	}

	return expanded
}

func parseLines(text string, max int) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-0123456789.) "))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// rerankConfigFrom maps a RerankingConfig onto rerank.Config's strategy
// selection: an LM when UseModel is set and one is available, the caller's
// external ranker when one is configured, and the heuristic scorer
// otherwise.
func rerankConfigFrom(cfg config.RerankingConfig, lm ragtypes.LanguageModel, external rerank.ExternalRanker) rerank.Config {
	switch {
	case cfg.UseModel && lm != nil:
		return rerank.Config{Strategy: ragtypes.RerankModel, LM: lm, Weights: rerank.DefaultHeuristicWeights()}
	case external != nil:
		return rerank.Config{Strategy: ragtypes.RerankExternal, External: external, Weights: rerank.DefaultHeuristicWeights()}
	default:
		return rerank.Config{Strategy: ragtypes.RerankHeuristic, Weights: rerank.DefaultHeuristicWeights()}
	}
}
