package ragtypes

// SearchSource tags which retrieval channel produced a ranked result.
type SearchSource string

const (
	SourceVector  SearchSource = "vector"
	SourceKeyword SearchSource = "keyword"
	SourceSparse  SearchSource = "sparse"
	SourceLate    SearchSource = "late"
)

// RerankStrategy selects which reranking approach the reranker applies.
type RerankStrategy string

const (
	RerankHeuristic RerankStrategy = "heuristic"
	RerankModel     RerankStrategy = "model"
	RerankExternal  RerankStrategy = "external"
	RerankMMR       RerankStrategy = "mmr"
)

// FeedbackAction classifies how a relevance signal was observed.
type FeedbackAction string

const (
	ActionClick    FeedbackAction = "click"
	ActionUse      FeedbackAction = "use"
	ActionDismiss  FeedbackAction = "dismiss"
	ActionExplicit FeedbackAction = "explicit"
)

// Weight returns the default weighting of a FeedbackAction in boost
// computation, per spec.md §4.6.
func (a FeedbackAction) Weight() float64 {
	switch a {
	case ActionExplicit:
		return 1.0
	case ActionUse:
		return 0.8
	case ActionDismiss:
		return 0.6
	case ActionClick:
		return 0.4
	default:
		return 0.0
	}
}

// FallbackStrategy governs what corrective-RAG grading does when too many
// candidates are filtered below the relevance threshold.
type FallbackStrategy string

const (
	FallbackNone           FallbackStrategy = "none"
	FallbackRelaxThreshold FallbackStrategy = "relax_threshold"
	FallbackKeepBest       FallbackStrategy = "keep_best"
)

// ComplexityClass buckets a query's structural complexity for context
// budgeting, per spec.md §4.7.
type ComplexityClass string

const (
	ComplexitySimple   ComplexityClass = "simple"
	ComplexityModerate ComplexityClass = "moderate"
	ComplexityComplex  ComplexityClass = "complex"
)
