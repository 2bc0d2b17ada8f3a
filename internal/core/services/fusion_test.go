package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

func candidates(ids ...string) []domain.RankedCandidate {
	out := make([]domain.RankedCandidate, len(ids))
	for i, id := range ids {
		out[i] = domain.RankedCandidate{DocumentID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func defaultFusion() domain.FusionSettings {
	return domain.DefaultSettings().Fusion
}

func fusedIDs(results []domain.FusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.DocumentID
	}
	return ids
}

func TestNormalizeCandidates(t *testing.T) {
	list := []domain.RankedCandidate{
		{DocumentID: "a", Score: 10},
		{DocumentID: "b", Score: 6},
		{DocumentID: "a", Score: 5},
		{DocumentID: "c", Score: 2},
	}

	out := normalizeCandidates(list)
	require.Len(t, out, 3)
	assert.Equal(t, 1, out[0].Rank)
	assert.Equal(t, 2, out[1].Rank)
	assert.Equal(t, 3, out[2].Rank)
	assert.InDelta(t, 1.0, out[0].NormalizedScore, 1e-9)
	assert.InDelta(t, 0.5, out[1].NormalizedScore, 1e-9)
	assert.InDelta(t, 0.0, out[2].NormalizedScore, 1e-9)
}

func TestNormalizeCandidates_EqualScores(t *testing.T) {
	out := normalizeCandidates([]domain.RankedCandidate{{DocumentID: "a", Score: 3}, {DocumentID: "b", Score: 3}})
	for _, c := range out {
		assert.Equal(t, 1.0, c.NormalizedScore)
	}
	assert.Empty(t, normalizeCandidates(nil))
}

func TestFuse_Formula(t *testing.T) {
	results := Fuse(candidates("a", "b"), candidates("b", "c"), defaultFusion())
	require.Len(t, results, 3)

	byID := map[string]domain.FusedResult{}
	for _, r := range results {
		byID[r.DocumentID] = r
	}
	assert.InDelta(t, 1.0/61, byID["a"].FusionScore, 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, byID["b"].FusionScore, 1e-12)
	assert.InDelta(t, 1.0/62, byID["c"].FusionScore, 1e-12)

	assert.Equal(t, domain.SourceKeyword, byID["a"].Source)
	assert.Equal(t, domain.SourceBoth, byID["b"].Source)
	assert.Equal(t, domain.SourceSemantic, byID["c"].Source)
	assert.NotNil(t, byID["b"].Keyword)
	assert.NotNil(t, byID["b"].Semantic)
	assert.Nil(t, byID["c"].Keyword)

	assert.Equal(t, []string{"b", "a", "c"}, fusedIDs(results))
}

func TestFuse_PresenceInBothListsScoresHigher(t *testing.T) {
	single := Fuse(candidates("x", "a"), nil, defaultFusion())
	both := Fuse(candidates("x", "a"), candidates("y", "a"), defaultFusion())

	score := func(results []domain.FusedResult, id string) float64 {
		for _, r := range results {
			if r.DocumentID == id {
				return r.FusionScore
			}
		}
		return 0
	}
	assert.Greater(t, score(both, "a"), score(single, "a"))
}

func TestFuse_NonIncreasingInRank(t *testing.T) {
	results := Fuse(candidates("a", "b", "c", "d", "e"), nil, defaultFusion())
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].FusionScore, results[i-1].FusionScore)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, fusedIDs(results))
}

func TestFuse_TiesBrokenByID(t *testing.T) {
	results := Fuse(candidates("b"), candidates("a"), defaultFusion())
	assert.Equal(t, []string{"a", "b"}, fusedIDs(results))
	assert.Equal(t, results[0].FusionScore, results[1].FusionScore)
}

func TestFuse_Weights(t *testing.T) {
	s := domain.FusionSettings{K: 60, KeywordWeight: 2, SemanticWeight: 0.5}
	results := Fuse(candidates("k"), candidates("s"), s)
	require.Len(t, results, 2)
	assert.Equal(t, "k", results[0].DocumentID)
	assert.InDelta(t, 2.0/61, results[0].FusionScore, 1e-12)
	assert.InDelta(t, 0.5/61, results[1].FusionScore, 1e-12)
}

func TestFuse_DefaultK(t *testing.T) {
	results := Fuse(candidates("a"), nil, domain.FusionSettings{KeywordWeight: 1})
	assert.InDelta(t, 1.0/61, results[0].FusionScore, 1e-12)
}

func TestFuse_BlendedScore(t *testing.T) {
	results := Fuse(candidates("a", "b"), candidates("a"), defaultFusion())
	require.Len(t, results, 2)

	// a: top fusion and top normalised score in both lists.
	assert.InDelta(t, 1.0, results[0].BlendedScore, 1e-9)

	// b: keyword only, normalised score 0.
	want := blendFusionWeight * (results[1].FusionScore / results[0].FusionScore)
	assert.InDelta(t, want, results[1].BlendedScore, 1e-9)
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, defaultFusion()))
}

func TestCandidatesFromHits(t *testing.T) {
	hits := []driven.SearchHit{{DocumentID: "a", Score: 2.5, MatchedTerms: []string{"x"}, Snippet: "…x…"}}
	out := CandidatesFromHits(hits)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].DocumentID)
	assert.Equal(t, 2.5, out[0].Score)
	assert.Equal(t, []string{"x"}, out[0].MatchedTerms)
	assert.Equal(t, "…x…", out[0].Excerpt)
}
