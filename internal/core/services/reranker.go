package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Final score composition.
const (
	fusionShare   = 0.6
	signalShare   = 0.4
	bouncePenalty = 0.1
	signalCount   = 6
)

// Title match scores.
const (
	titleExact      = 1.0
	titlePrefix     = 0.8
	titleSubstring  = 0.6
	titleWordsScale = 0.5
)

const (
	densityTermCap = 5
	densityMinTerm = 2
)

// documentReader reads document content.
type documentReader interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
}

// importanceSource provides normalised importance per document.
type importanceSource interface {
	Score(id string) float64
}

// ReRanker rescores the top of a fused list with document signals.
//
// Only the first PoolSize candidates are read and scored; the rest keep a
// score derived from fusion alone, so their relative order never changes.
type ReRanker struct {
	docs     documentReader
	graph    importanceSource
	usage    driven.UsageProvider
	settings domain.ReRankSettings
}

// NewReRanker creates a re-ranker. usage may be nil.
func NewReRanker(docs documentReader, graph importanceSource, usage driven.UsageProvider, s domain.ReRankSettings) *ReRanker {
	if s.PoolSize <= 0 {
		s.PoolSize = domain.DefaultPoolSize
	}
	if s.FusionCalibration <= 0 {
		s.FusionCalibration = domain.DefaultFusionCalibration
	}
	s.Weights = normalizeWeights(s.Weights)
	return &ReRanker{docs: docs, graph: graph, usage: usage, settings: s}
}

// normalizeWeights scales weights to sum to 1. Negative weights count as 0;
// if nothing is left every signal gets an equal share.
func normalizeWeights(w domain.SignalWeights) domain.SignalWeights {
	values := []*float64{&w.Title, &w.Recency, &w.Usage, &w.Density, &w.Importance, &w.Proximity}
	sum := 0.0
	for _, v := range values {
		*v = max(0, *v)
		sum += *v
	}
	for _, v := range values {
		if sum <= 0 {
			*v = 1.0 / signalCount
		} else {
			*v /= sum
		}
	}
	return w
}

// fusionComponent is the calibrated fusion part of a final score.
func (r *ReRanker) fusionComponent(fusion float64) float64 {
	return fusionShare * math.Min(1, fusion*r.settings.FusionCalibration)
}

// FusionResults converts fused results to search results in fusion order,
// scored by their fusion score.
func FusionResults(fused []domain.FusedResult) []domain.SearchResult {
	out := make([]domain.SearchResult, len(fused))
	for i, f := range fused {
		out[i] = domain.SearchResult{
			DocumentID:  f.DocumentID,
			Score:       f.FusionScore,
			FusionScore: f.FusionScore,
			Source:      f.Source,
			Excerpt:     f.Excerpt(),
		}
	}
	return out
}

// contentCache holds the documents read during one ranking pass.
type contentCache struct {
	docs  documentReader
	items map[string]*cachedContent
}

type cachedContent struct {
	doc   *domain.Document
	words []string
}

func newContentCache(docs documentReader) *contentCache {
	return &contentCache{docs: docs, items: make(map[string]*cachedContent)}
}

// get returns the document and its words, nil if it cannot be read.
func (c *contentCache) get(ctx context.Context, id string) *cachedContent {
	if item, ok := c.items[id]; ok {
		return item
	}
	if c.docs == nil {
		return nil
	}
	doc, err := c.docs.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Debug("rerank: read %s: %v", id, err)
		}
		c.items[id] = nil
		return nil
	}
	item := &cachedContent{doc: doc, words: tokenize(doc.Title + "\n" + doc.Content)}
	c.items[id] = item
	return item
}

// Rerank scores the pool and returns all candidates sorted by final score.
// query is the free text of the search, seg its segmentation.
//
// If ctx ends mid-pass the unscored candidates keep their fusion-derived
// score and ctx.Err() is returned with the results.
func (r *ReRanker) Rerank(ctx context.Context, query string, seg domain.Segmentation, fused []domain.FusedResult) ([]domain.SearchResult, error) {
	results := FusionResults(fused)
	for i := range results {
		results[i].Score = r.fusionComponent(results[i].FusionScore)
	}

	pool := min(r.settings.PoolSize, len(results))
	cache := newContentCache(r.docs)

	var ctxErr error
	contents := make([]*cachedContent, pool)
	for i := 0; i < pool; i++ {
		if ctxErr = ctx.Err(); ctxErr != nil {
			pool = i
			break
		}
		contents[i] = cache.get(ctx, results[i].DocumentID)
	}

	terms := uniqueTerms(seg.Terms, densityMinTerm)
	densities := poolDensities(terms, contents[:pool])

	for i := 0; i < pool; i++ {
		if ctxErr == nil {
			ctxErr = ctx.Err()
		}
		if ctxErr != nil {
			break
		}
		signals := r.signals(ctx, query, seg, results[i].DocumentID, contents[i])
		signals.Density = densities[i]
		results[i].Signals = &signals
		results[i].Score = r.finalScore(results[i].FusionScore, signals)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, ctxErr
}

// finalScore combines the calibrated fusion score with the weighted signals.
func (r *ReRanker) finalScore(fusion float64, s domain.SignalBreakdown) float64 {
	w := r.settings.Weights
	weighted := w.Title*s.Title +
		w.Recency*s.Recency +
		w.Usage*s.Usage +
		w.Density*s.Density +
		w.Importance*s.Importance +
		w.Proximity*s.Proximity
	return r.fusionComponent(fusion) + signalShare*(weighted-bouncePenalty*s.Bounce)
}

// signals computes every signal except density, which depends on the pool.
func (r *ReRanker) signals(ctx context.Context, query string, seg domain.Segmentation, id string, content *cachedContent) domain.SignalBreakdown {
	var s domain.SignalBreakdown

	if r.graph != nil {
		s.Importance = clamp01(r.graph.Score(id))
	}

	if r.usage != nil {
		u, err := r.usage.Signals(ctx, id)
		if err != nil {
			logger.Debug("rerank: usage signals for %s: %v", id, err)
		} else {
			s.Recency = clamp01(u.Recency)
			if s.Recency < r.settings.RecencyFloor {
				s.Recency = 0
			}
			usageCap := r.settings.UsageCap
			if usageCap <= 0 {
				usageCap = 1
			}
			s.Usage = clamp01(u.Frequency / usageCap)
			s.Bounce = clamp01(u.Bounce)
		}
	}

	if content != nil {
		s.Title = titleScore(query, content.doc.DisplayTitle())
		s.Proximity = proximityScore(content.words, seg)
	}
	return s
}

// titleScore rates how well a title matches the query text.
func titleScore(query, title string) float64 {
	qWords := tokenize(query)
	tWords := tokenize(title)
	if len(qWords) == 0 || len(tWords) == 0 {
		return 0
	}
	q := strings.Join(qWords, " ")
	t := strings.Join(tWords, " ")

	switch {
	case q == t:
		return titleExact
	case strings.HasPrefix(t, q):
		return titlePrefix
	case strings.Contains(t, q):
		return titleSubstring
	}

	inTitle := make(map[string]struct{}, len(tWords))
	for _, w := range tWords {
		inTitle[w] = struct{}{}
	}
	found := 0
	for _, w := range qWords {
		if _, ok := inTitle[w]; ok {
			found++
		}
	}
	return titleWordsScale * float64(found) / float64(len(qWords))
}

// poolDensities scores term density for each pool document: the sum over
// query terms of IDF times the occurrence count capped at densityTermCap,
// normalised by the best document of the pool. IDF is computed over the pool.
func poolDensities(terms []string, contents []*cachedContent) []float64 {
	out := make([]float64, len(contents))
	if len(terms) == 0 || len(contents) == 0 {
		return out
	}

	counts := make([]map[string]int, len(contents))
	df := make(map[string]int, len(terms))
	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}
	for i, c := range contents {
		if c == nil {
			continue
		}
		counts[i] = make(map[string]int)
		for _, w := range c.words {
			if _, ok := want[w]; ok {
				counts[i][w]++
			}
		}
		for t := range counts[i] {
			df[t]++
		}
	}

	n := float64(len(contents))
	best := 0.0
	for i := range contents {
		raw := 0.0
		for t, count := range counts[i] {
			idf := math.Log(1 + n/float64(df[t]))
			raw += idf * float64(min(count, densityTermCap))
		}
		out[i] = raw
		best = max(best, raw)
	}
	if best > 0 {
		for i := range out {
			out[i] /= best
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
