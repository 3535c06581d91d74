// Package fusion implements Reciprocal Rank Fusion over an arbitrary
// number of ranked lists, generalizing the two-list (BM25 + vector)
// case to however many ranked sources a hybrid search wants to combine
// (lexical, dense, sparse, late-interaction).
package fusion

import "sort"

// DefaultK is the standard RRF smoothing constant, k=60, empirically
// validated across domains by search engines that publish it (Azure AI
// Search, OpenSearch).
const DefaultK = 60

// Ranked is a single (doc_id, score) entry within one source list, in
// rank order (0-indexed on entry into Fuse).
type Ranked struct {
	ID    string
	Score float64
}

// Fused is a single document's combined result.
type Fused struct {
	ID            string
	CombinedScore float64
	RankSum       int // sum of 0-indexed ranks across every list the doc appeared in, used only for tie-breaking
}

// Fuse combines an arbitrary number of ranked lists with Reciprocal Rank
// Fusion: for each list i with weight weights[i], a document at 0-indexed
// rank r contributes weights[i] * 1/(k + r + 1) to its combined score.
// A nil or empty weights slice defaults every list to weight 1/n. A
// document absent from a list contributes 0 from that list and does not
// count toward its rank-sum tie-break. Ties are broken by rank-sum
// ascending (a document that ranked consistently well across lists beats
// one with the same score concentrated in a single list).
func Fuse(lists [][]Ranked, weights []float64, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}
	if len(lists) == 0 {
		return []Fused{}
	}
	if len(weights) == 0 {
		w := 1.0 / float64(len(lists))
		weights = make([]float64, len(lists))
		for i := range weights {
			weights[i] = w
		}
	}

	scores := make(map[string]float64)
	rankSums := make(map[string]int)
	order := make([]string, 0)
	seen := make(map[string]struct{})

	for i, list := range lists {
		weight := 0.0
		if i < len(weights) {
			weight = weights[i]
		}
		for rank, entry := range list {
			if _, ok := seen[entry.ID]; !ok {
				seen[entry.ID] = struct{}{}
				order = append(order, entry.ID)
			}
			scores[entry.ID] += weight / float64(k+rank+1)
			rankSums[entry.ID] += rank
		}
	}

	if len(order) == 0 {
		return []Fused{}
	}

	results := make([]Fused, 0, len(order))
	for _, id := range order {
		results = append(results, Fused{
			ID:            id,
			CombinedScore: scores[id],
			RankSum:       rankSums[id],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].RankSum < results[j].RankSum
	})

	return results
}

// NormalizeScores rescales a ranked list's scores into [0, 1] by
// dividing by the maximum score present, leaving an all-zero or empty
// list untouched. Per the always-normalize-before-fusion decision, call
// this on every source list before passing it to Fuse so that lists on
// incomparable native scales (BM25's unbounded scores vs. a [0,1]
// cosine similarity) contribute comparably.
func NormalizeScores(list []Ranked) []Ranked {
	if len(list) == 0 {
		return list
	}
	max := list[0].Score
	for _, r := range list {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return list
	}
	out := make([]Ranked, len(list))
	for i, r := range list {
		out[i] = Ranked{ID: r.ID, Score: r.Score / max}
	}
	return out
}
