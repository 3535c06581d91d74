package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_ScenarioC(t *testing.T) {
	l1 := []Ranked{{ID: "A", Score: 0.9}, {ID: "B", Score: 0.8}, {ID: "C", Score: 0.7}}
	l2 := []Ranked{{ID: "C", Score: 0.9}, {ID: "A", Score: 0.8}, {ID: "D", Score: 0.7}}

	results := Fuse([][]Ranked{l1, l2}, []float64{0.5, 0.5}, 60)
	require.Len(t, results, 4)

	byID := make(map[string]float64, len(results))
	for _, r := range results {
		byID[r.ID] = r.CombinedScore
	}

	assert.InDelta(t, 0.5*(1.0/61+1.0/62), byID["A"], 1e-9)
	assert.InDelta(t, 0.5*(1.0/63+1.0/61), byID["C"], 1e-9)
	assert.InDelta(t, 0.5*(1.0/62), byID["B"], 1e-9)
	assert.InDelta(t, 0.5*(1.0/63), byID["D"], 1e-9)

	order := []string{results[0].ID, results[1].ID, results[2].ID, results[3].ID}
	assert.Equal(t, []string{"A", "C", "B", "D"}, order)
}

func TestFuse_DefaultWeightsAreUniform(t *testing.T) {
	l1 := []Ranked{{ID: "A", Score: 1}}
	l2 := []Ranked{{ID: "A", Score: 1}}
	l3 := []Ranked{{ID: "A", Score: 1}}

	results := Fuse([][]Ranked{l1, l2, l3}, nil, 60)
	require.Len(t, results, 1)
	assert.InDelta(t, 3*(1.0/3.0)*(1.0/61), results[0].CombinedScore, 1e-9)
}

func TestFuse_MissingDocContributesZero(t *testing.T) {
	l1 := []Ranked{{ID: "A", Score: 1}, {ID: "B", Score: 0.5}}
	l2 := []Ranked{{ID: "A", Score: 1}}

	results := Fuse([][]Ranked{l1, l2}, []float64{0.5, 0.5}, 60)
	byID := make(map[string]float64, len(results))
	for _, r := range results {
		byID[r.ID] = r.CombinedScore
	}
	assert.InDelta(t, 0.5/61+0.5/61, byID["A"], 1e-9)
	assert.InDelta(t, 0.5/62, byID["B"], 1e-9)
}

func TestFuse_TiesBrokenByRankSumAscending(t *testing.T) {
	// P and Q swap rank 0/1 across the two lists, so their combined RRF
	// scores are exactly equal; rank-sum is equal too (0+1 == 1+0), so
	// neither key separates them and their relative order is not fixed.
	list1 := []Ranked{{ID: "P", Score: 1}, {ID: "Q", Score: 1}}
	list2 := []Ranked{{ID: "Q", Score: 1}, {ID: "P", Score: 1}}

	tied := Fuse([][]Ranked{list1, list2}, []float64{0.5, 0.5}, 60)
	require.Len(t, tied, 2)
	assert.InDelta(t, tied[0].CombinedScore, tied[1].CombinedScore, 1e-9)
	assert.Equal(t, tied[0].RankSum, tied[1].RankSum)

	// With k=1, X (rank 1, weight 3) and Y (rank 0, weight 2) both score
	// exactly 1.0; Y's lower rank-sum (0 < 1) puts it ahead of X.
	list3 := []Ranked{{ID: "Z", Score: 1}, {ID: "X", Score: 1}}
	list4 := []Ranked{{ID: "Y", Score: 1}}

	broken := Fuse([][]Ranked{list3, list4}, []float64{3, 2}, 1)
	require.Len(t, broken, 3)
	assert.Equal(t, []string{"Z", "Y", "X"}, []string{broken[0].ID, broken[1].ID, broken[2].ID})
}

func TestFuse_EmptyListsReturnsEmpty(t *testing.T) {
	assert.Equal(t, []Fused{}, Fuse(nil, nil, 60))
	assert.Equal(t, []Fused{}, Fuse([][]Ranked{{}, {}}, nil, 60))
}

func TestFuse_KDefaultsWhenNonPositive(t *testing.T) {
	l1 := []Ranked{{ID: "A", Score: 1}}
	results := Fuse([][]Ranked{l1}, []float64{1}, 0)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/61, results[0].CombinedScore, 1e-9)
}

func TestNormalizeScores_ScalesToUnitMax(t *testing.T) {
	list := []Ranked{{ID: "A", Score: 4}, {ID: "B", Score: 2}}
	normalized := NormalizeScores(list)
	assert.InDelta(t, 1.0, normalized[0].Score, 1e-9)
	assert.InDelta(t, 0.5, normalized[1].Score, 1e-9)
}

func TestNormalizeScores_EmptyAndZeroMaxAreNoops(t *testing.T) {
	assert.Equal(t, []Ranked{}, NormalizeScores([]Ranked{}))
	zero := []Ranked{{ID: "A", Score: 0}}
	assert.Equal(t, zero, NormalizeScores(zero))
}
