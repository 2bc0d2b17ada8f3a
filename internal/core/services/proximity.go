package services

import (
	"math"
	"sort"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// proximityMinTermLen is the shortest query term proximity looks for.
const proximityMinTermLen = 3

// partialCoverageScale scales the score of documents missing some terms.
const partialCoverageScale = 0.5

type occurrence struct {
	pos  int
	term int
}

// minCoveringSpan returns the length in words of the shortest window of
// words that contains every term at least once, and how many distinct terms
// occur at all. The span is 0 unless all terms occur.
func minCoveringSpan(words, terms []string) (span, found int) {
	index := make(map[string]int, len(terms))
	for i, t := range terms {
		index[t] = i
	}

	var occ []occurrence
	present := make([]bool, len(terms))
	for pos, w := range words {
		if ti, ok := index[w]; ok {
			occ = append(occ, occurrence{pos: pos, term: ti})
			if !present[ti] {
				present[ti] = true
				found++
			}
		}
	}
	if found < len(terms) || found == 0 {
		return 0, found
	}
	sort.SliceStable(occ, func(i, j int) bool { return occ[i].pos < occ[j].pos })

	counts := make([]int, len(terms))
	covered := 0
	best := math.MaxInt
	left := 0
	for right := range occ {
		if counts[occ[right].term] == 0 {
			covered++
		}
		counts[occ[right].term]++

		for covered == len(terms) {
			if width := occ[right].pos - occ[left].pos + 1; width < best {
				best = width
			}
			counts[occ[left].term]--
			if counts[occ[left].term] == 0 {
				covered--
			}
			left++
		}
	}
	return best, found
}

// spanProximity scores how close together the terms appear in words.
// All terms found: 1/(1+ln(max(1, span/ideal))) where ideal is the number of
// terms. Some missing: a coverage fraction scaled down.
func spanProximity(words, terms []string) float64 {
	terms = uniqueTerms(terms, proximityMinTermLen)
	if len(terms) == 0 {
		return 0
	}

	span, found := minCoveringSpan(words, terms)
	if found < len(terms) {
		return partialCoverageScale * float64(found) / float64(len(terms))
	}
	ratio := float64(span) / float64(len(terms))
	return 1 / (1 + math.Log(math.Max(1, ratio)))
}

// containsSequence reports whether seq occurs contiguously in words.
func containsSequence(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(words); i++ {
		for j := range seq {
			if words[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

// proximityScore scores term proximity of a tokenised document for a query.
// Without phrase segments it is the span score over all terms. With them,
// each segment is scored on its own and the scores are averaged: an intact
// phrase scores 1, a fragmented one falls back to the span score over its
// words, and a single word scores 1 if present.
func proximityScore(words []string, seg domain.Segmentation) float64 {
	if !seg.HasPhrases() {
		return spanProximity(words, seg.Terms)
	}

	var vocabulary map[string]struct{}
	total, counted := 0.0, 0
	for _, s := range seg.Segments {
		if s.Phrase {
			counted++
			if containsSequence(words, s.Words) {
				total++
			} else {
				total += spanProximity(words, s.Words)
			}
			continue
		}

		if len(s.Words) == 0 || len([]rune(s.Words[0])) < proximityMinTermLen {
			continue
		}
		if vocabulary == nil {
			vocabulary = make(map[string]struct{}, len(words))
			for _, w := range words {
				vocabulary[w] = struct{}{}
			}
		}
		counted++
		if _, ok := vocabulary[s.Words[0]]; ok {
			total++
		}
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
