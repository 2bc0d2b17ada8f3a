package services

import (
	"sort"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Blend weights of the auxiliary score.
const (
	blendFusionWeight = 0.7
	blendSourceWeight = 0.3
)

// CandidatesFromHits converts keyword engine hits into a ranked list.
func CandidatesFromHits(hits []driven.SearchHit) []domain.RankedCandidate {
	out := make([]domain.RankedCandidate, len(hits))
	for i, h := range hits {
		out[i] = domain.RankedCandidate{
			DocumentID:   h.DocumentID,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
			Excerpt:      h.Snippet,
		}
	}
	return out
}

// normalizeCandidates assigns 1-based ranks in list order and min-max
// normalised scores. Repeated documents keep their first position only.
func normalizeCandidates(list []domain.RankedCandidate) []domain.RankedCandidate {
	out := make([]domain.RankedCandidate, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, c := range list {
		if _, ok := seen[c.DocumentID]; ok || c.DocumentID == "" {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return out
	}

	lo, hi := out[0].Score, out[0].Score
	for _, c := range out[1:] {
		lo = min(lo, c.Score)
		hi = max(hi, c.Score)
	}
	for i := range out {
		out[i].Rank = i + 1
		if hi == lo {
			out[i].NormalizedScore = 1
		} else {
			out[i].NormalizedScore = (out[i].Score - lo) / (hi - lo)
		}
	}
	return out
}

// Fuse merges a keyword and a semantic list with reciprocal rank fusion.
// Each list must be ordered best first. Results are sorted by fusion score,
// equal scores by document id.
func Fuse(keyword, semantic []domain.RankedCandidate, s domain.FusionSettings) []domain.FusedResult {
	k := s.K
	if k <= 0 {
		k = domain.DefaultRRFK
	}

	byID := make(map[string]*domain.FusedResult)
	var order []*domain.FusedResult
	get := func(id string) *domain.FusedResult {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &domain.FusedResult{DocumentID: id}
		byID[id] = r
		order = append(order, r)
		return r
	}

	for _, c := range normalizeCandidates(keyword) {
		r := get(c.DocumentID)
		r.Keyword = &c
		r.FusionScore += s.KeywordWeight / (k + float64(c.Rank))
	}
	for _, c := range normalizeCandidates(semantic) {
		r := get(c.DocumentID)
		r.Semantic = &c
		r.FusionScore += s.SemanticWeight / (k + float64(c.Rank))
	}

	results := make([]domain.FusedResult, len(order))
	maxFusion := 0.0
	for i, r := range order {
		switch {
		case r.Keyword != nil && r.Semantic != nil:
			r.Source = domain.SourceBoth
		case r.Keyword != nil:
			r.Source = domain.SourceKeyword
		default:
			r.Source = domain.SourceSemantic
		}
		maxFusion = max(maxFusion, r.FusionScore)
		results[i] = *r
	}

	for i := range results {
		results[i].BlendedScore = blendedScore(results[i], maxFusion, s)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusionScore != results[j].FusionScore {
			return results[i].FusionScore > results[j].FusionScore
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	return results
}

// blendedScore mixes the relative fusion score with the weighted average of
// the normalised source scores the result has.
func blendedScore(r domain.FusedResult, maxFusion float64, s domain.FusionSettings) float64 {
	fusion := 0.0
	if maxFusion > 0 {
		fusion = r.FusionScore / maxFusion
	}

	var sum, weights float64
	if r.Keyword != nil {
		sum += s.KeywordWeight * r.Keyword.NormalizedScore
		weights += s.KeywordWeight
	}
	if r.Semantic != nil {
		sum += s.SemanticWeight * r.Semantic.NormalizedScore
		weights += s.SemanticWeight
	}
	source := 0.0
	if weights > 0 {
		source = sum / weights
	}

	return blendFusionWeight*fusion + blendSourceWeight*source
}
