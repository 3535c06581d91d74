package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/fusion"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// Retrieve runs the full retrieve state machine described in spec.md
// §4.8: validate, sanitize, cache lookup, expand, multi-variant search,
// fuse, rerank, grade, select, assemble context, cite, cache. It never
// returns an error; every failure mode degrades to a partial or empty
// result, per spec.md §7.
func (p *Pipeline) Retrieve(ctx context.Context, query, collection string) *ragtypes.PipelineContext {
	requestID := uuid.NewString()

	if !ValidateRetrievalInput(query, collection) {
		return emptyWithRequestID(query, requestID)
	}

	cfg := p.config()
	sanitized, _ := SanitizeQuery(query, cfg.MaxQueryLength)
	if sanitized == "" {
		return emptyWithRequestID(query, requestID)
	}

	if cfg.Cache.Enabled {
		if hit, ok := p.queryCache.Get(sanitized, collection); ok {
			cloned := *hit
			cloned.SearchMetadata.CacheHit = true
			cloned.SearchMetadata.RequestID = requestID
			return &cloned
		}
	}

	cs := p.getOrCreateCollection(ctx, collection)

	pctx := p.retrieveOnce(ctx, cs, collection, sanitized, cfg)
	pctx.SearchMetadata.RequestID = requestID

	if cfg.Cache.Enabled && !pctx.Empty() {
		p.queryCache.Put(sanitized, collection, pctx)
	}
	return pctx
}

// RetrieveIterative runs retrieve repeatedly, rewriting the query between
// rounds, until is_retrieval_sufficient holds or opts.MaxIterations is
// reached, per spec.md §4.8's iterative-retrieval rule. Results across
// rounds are merged and re-sliced to top_k rather than simply
// concatenated, and previously-tried query rewrites are not retried.
func (p *Pipeline) RetrieveIterative(ctx context.Context, query, collection string, opts RetrieveOptions) *ragtypes.PipelineContext {
	cfg := p.config()
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = cfg.IterativeRetrieval.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}
	sufficiencyThreshold := opts.SufficiencyThreshold
	if sufficiencyThreshold <= 0 {
		sufficiencyThreshold = cfg.IterativeRetrieval.SufficiencyThreshold
	}

	seenQueries := map[string]bool{strings.ToLower(strings.TrimSpace(query)): true}
	currentQuery := query

	var merged map[string]ragtypes.RerankedDoc
	order := make([]string, 0)
	var last *ragtypes.PipelineContext
	rounds := 0

	for rounds = 1; rounds <= maxIterations; rounds++ {
		pctx := p.Retrieve(ctx, currentQuery, collection)
		last = pctx

		if merged == nil {
			merged = make(map[string]ragtypes.RerankedDoc, len(pctx.Documents))
		}
		for _, d := range pctx.Documents {
			if _, exists := merged[d.ID]; !exists {
				order = append(order, d.ID)
			}
			merged[d.ID] = d
		}

		relevant := countRelevant(pctx.Documents, sufficiencyThreshold)
		minRelevant := cfg.IterativeRetrieval.MinRelevant
		if minRelevant < 1 {
			minRelevant = 1
		}
		if relevant >= minRelevant || rounds >= maxIterations {
			break
		}

		nextQuery := p.rewriteQuery(ctx, currentQuery, pctx)
		key := strings.ToLower(strings.TrimSpace(nextQuery))
		if nextQuery == "" || seenQueries[key] {
			break
		}
		seenQueries[key] = true
		currentQuery = nextQuery
	}

	if last == nil {
		return ragtypes.EmptyContext(query)
	}

	mergedDocs := make([]ragtypes.RerankedDoc, 0, len(order))
	for _, id := range order {
		mergedDocs = append(mergedDocs, merged[id])
	}
	sort.SliceStable(mergedDocs, func(i, j int) bool { return mergedDocs[i].RerankScore > mergedDocs[j].RerankScore })
	topK := cfg.TopK
	if topK > 0 && len(mergedDocs) > topK {
		mergedDocs = mergedDocs[:topK]
	}

	last.Documents = mergedDocs
	last.SearchMetadata.IterativeRounds = rounds
	if cfg.Citations.Enabled {
		last.Citations = buildCitations(mergedDocs)
	}
	return last
}

// countRelevant is is_retrieval_sufficient's core predicate: how many
// documents score at or above threshold.
func countRelevant(docs []ragtypes.RerankedDoc, threshold float64) int {
	count := 0
	for _, d := range docs {
		if d.RerankScore >= threshold {
			count++
		}
	}
	return count
}

// rewriteQuery asks the configured language model to reformulate the
// query; without an LM (or when the LM fails) it falls back to appending
// the first five tokens of each of the round's top two documents, and
// returns "" when neither is possible so the caller stops iterating.
func (p *Pipeline) rewriteQuery(ctx context.Context, query string, pctx *ragtypes.PipelineContext) string {
	if p.lm != nil {
		prompt := "The following query did not retrieve sufficiently relevant documents. " +
			"Rewrite it to be more specific or use different terminology. " +
			"Respond with only the rewritten query.\n\nQuery: " + query
		resp, err := p.lm.Generate(ctx, prompt, 0.3)
		if err == nil {
			if rewritten := strings.TrimSpace(resp); rewritten != "" {
				return rewritten
			}
		}
	}
	if pctx == nil || len(pctx.Documents) == 0 {
		return ""
	}
	terms := []string{query}
	for i, d := range pctx.Documents {
		if i >= 2 {
			break
		}
		toks := p.tokenizer.Tokenize(d.Content)
		if len(toks) > 5 {
			toks = toks[:5]
		}
		terms = append(terms, toks...)
	}
	return strings.Join(terms, " ")
}

func emptyWithRequestID(query, requestID string) *ragtypes.PipelineContext {
	empty := ragtypes.EmptyContext(query)
	empty.SearchMetadata.RequestID = requestID
	return empty
}

// retrieveOnce performs steps 4 through 13 of spec.md §4.8's retrieve
// state machine for an already-validated, already-sanitized query.
func (p *Pipeline) retrieveOnce(ctx context.Context, cs *collectionState, collection, query string, cfg config.Config) *ragtypes.PipelineContext {
	meta := ragtypes.SearchMetadata{HybridSearchUsed: cfg.HybridSearch.Enabled}

	expanded := p.expandQuery(ctx, query, cfg.QueryExpansion)
	if expanded != nil {
		meta.ExpansionUsed = true
	}

	variants := buildVariants(query, expanded, cfg.QueryExpansion.MaxVariants)

	searchTopK := searchWindow(cfg.TopK)
	fusedDocs, err := p.searchVariants(ctx, cs, collection, variants, cfg, searchTopK)
	if err != nil {
		return emptyWithMeta(query, meta)
	}
	meta.PreFilterCount = len(fusedDocs)
	if len(fusedDocs) == 0 {
		return emptyWithMeta(query, meta)
	}

	var reranked []ragtypes.RerankedDoc
	if cfg.Reranking.Enabled {
		rcfg := rerankConfigFrom(cfg.Reranking, p.lm, p.external)
		reranked = p.reranker.Rerank(ctx, query, fusedDocs, rcfg)
		meta.RerankingUsed = true
	} else {
		reranked = passthroughRerank(fusedDocs)
	}

	if cfg.CorrectiveRAG.Enabled {
		graded := p.gradeAndFilter(ctx, query, reranked, cfg.CorrectiveRAG)
		reranked = graded.docs
		meta.CorrectiveUsed = true
		meta.FallbackUsed = graded.fallbackUsed
	}

	if cfg.AdaptiveReranking.Enabled {
		reranked = p.adaptiveReranker.RerankWithLearning(query, reranked)
	}

	// Scenario F: when corrective grading ran, its own threshold+fallback
	// already serves as this pass's relevance gate. Re-applying the plain
	// similarity_threshold here would immediately discard a doc the
	// fallback explicitly forced through because it scored below even a
	// lenient relevance_threshold.
	if !cfg.CorrectiveRAG.Enabled {
		reranked = filterByThreshold(reranked, cfg.SimilarityThreshold)
	}

	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].RerankScore > reranked[j].RerankScore })
	if cfg.TopK > 0 && len(reranked) > cfg.TopK {
		reranked = reranked[:cfg.TopK]
	}
	meta.PostFilterCount = len(reranked)

	if len(reranked) == 0 {
		return emptyWithMeta(query, meta)
	}

	selected, formatted, totalTokens := p.assembleContext(query, reranked, cfg)
	reranked = selected

	var citations []ragtypes.Citation
	if cfg.Citations.Enabled {
		citations = buildCitations(reranked)
	}

	return &ragtypes.PipelineContext{
		Documents:           reranked,
		Query:               query,
		ExpandedQuery:       expanded,
		FormattedContext:    formatted,
		TotalTokensEstimate: totalTokens,
		Citations:           citations,
		SearchMetadata:      meta,
	}
}

func emptyWithMeta(query string, meta ragtypes.SearchMetadata) *ragtypes.PipelineContext {
	empty := ragtypes.EmptyContext(query)
	empty.SearchMetadata = meta
	return empty
}

// searchWindow widens the per-variant candidate pool beyond top_k so
// fusion and reranking have enough material to work with before the
// final threshold+top-K selection narrows it back down.
func searchWindow(topK int) int {
	if topK <= 0 {
		return 50
	}
	window := topK * 4
	if window < 20 {
		window = 20
	}
	return window
}

// buildVariants assembles the query formulations step 6 searches: the
// original plus any expansion variants, deduplicated and capped.
func buildVariants(query string, expanded *ragtypes.ExpandedQuery, maxVariants int) []variant {
	out := []variant{{query: query, isOriginal: true}}
	if expanded == nil {
		return out
	}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, v := range expanded.Variants {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, variant{query: v})
		if maxVariants > 0 && len(out) >= maxVariants {
			break
		}
	}
	return out
}

// searchVariants runs searchSingle for every variant concurrently and
// merges the per-variant ranked lists with reciprocal rank fusion, per
// spec.md §4.8 step 6. Results land in an index-aligned slice so the
// merge order never depends on goroutine completion order.
func (p *Pipeline) searchVariants(ctx context.Context, cs *collectionState, collection string, variants []variant, cfg config.Config, topK int) ([]ragtypes.ScoredDoc, error) {
	results := make([][]ragtypes.ScoredDoc, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			docs, err := p.searchSingle(gctx, cs, collection, v.query, cfg, topK)
			if err != nil {
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	if len(variants) == 1 {
		return results[0], nil
	}

	lists := make([][]fusion.Ranked, 0, len(results))
	byID := make(map[string]ragtypes.ScoredDoc)
	for _, docs := range results {
		list := make([]fusion.Ranked, len(docs))
		for i, d := range docs {
			list[i] = fusion.Ranked{ID: d.ID, Score: d.OriginalScore}
			if _, exists := byID[d.ID]; !exists {
				byID[d.ID] = d
			}
		}
		lists = append(lists, fusion.NormalizeScores(list))
	}

	fused := fusion.Fuse(lists, nil, fusion.DefaultK)
	out := make([]ragtypes.ScoredDoc, 0, len(fused))
	for _, f := range fused {
		doc, ok := byID[f.ID]
		if !ok {
			continue
		}
		doc.OriginalScore = f.CombinedScore
		out = append(out, doc)
	}
	return out, nil
}

func filterByThreshold(docs []ragtypes.RerankedDoc, threshold float64) []ragtypes.RerankedDoc {
	out := make([]ragtypes.RerankedDoc, 0, len(docs))
	for _, d := range docs {
		if d.RerankScore >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// assembleContext formats the selected documents into an LM-ready
// string, either via the token-budgeted context manager or a straight
// concatenation, per spec.md §4.8 step 10.
func (p *Pipeline) assembleContext(query string, docs []ragtypes.RerankedDoc, cfg config.Config) ([]ragtypes.RerankedDoc, string, int) {
	if cfg.ContextManager.Enabled {
		selected, formatted, report := p.ctxManager.Plan(query, docs, cfg.MaxContextLength)
		return selected, formatted, report.UsedTokens
	}
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(d.Content)
	}
	text := b.String()
	return docs, text, len(text) / 4
}
