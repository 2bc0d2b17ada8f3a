package domain

import "time"

// ResultSource records which retrieval lists a fused result came from.
type ResultSource string

// Result sources.
const (
	SourceKeyword  ResultSource = "keyword"
	SourceSemantic ResultSource = "semantic"
	SourceBoth     ResultSource = "both"

	// SourceFilter marks results of a filter-only query, listed by importance.
	SourceFilter ResultSource = "filter"
)

// RankedCandidate is one entry of a single source's ranked list.
type RankedCandidate struct {
	// DocumentID is the matched document.
	DocumentID string

	// Score is the source's raw relevance score.
	Score float64

	// Rank is the 1-based position in the source list.
	Rank int

	// NormalizedScore is the min-max normalised score in [0,1].
	NormalizedScore float64

	// MatchedTerms are the query terms the source reports as matched.
	MatchedTerms []string

	// Excerpt is the best matching passage, if the source provides one.
	Excerpt string
}

// FusedResult is a document after reciprocal rank fusion.
type FusedResult struct {
	DocumentID string

	// FusionScore is the RRF score and the primary sort key.
	FusionScore float64

	// BlendedScore mixes normalised fusion and source scores. Auxiliary only.
	BlendedScore float64

	// Keyword is the keyword candidate, nil if absent from that list.
	Keyword *RankedCandidate

	// Semantic is the semantic candidate, nil if absent from that list.
	Semantic *RankedCandidate

	Source ResultSource
}

// Excerpt returns the semantic excerpt when present, else the keyword one.
func (f FusedResult) Excerpt() string {
	if f.Semantic != nil && f.Semantic.Excerpt != "" {
		return f.Semantic.Excerpt
	}
	if f.Keyword != nil {
		return f.Keyword.Excerpt
	}
	return ""
}

// SignalBreakdown holds the re-ranking signals computed for a candidate.
type SignalBreakdown struct {
	Title      float64 `json:"title"`
	Recency    float64 `json:"recency"`
	Usage      float64 `json:"usage"`
	Density    float64 `json:"density"`
	Importance float64 `json:"importance"`
	Proximity  float64 `json:"proximity"`
	Bounce     float64 `json:"bounce"`
}

// SearchResult is a ranked document returned to callers.
type SearchResult struct {
	DocumentID  string           `json:"document_id"`
	Title       string           `json:"title"`
	Score       float64          `json:"score"`
	FusionScore float64          `json:"fusion_score"`
	Source      ResultSource     `json:"source"`
	Excerpt     string           `json:"excerpt,omitempty"`
	Signals     *SignalBreakdown `json:"signals,omitempty"`
	Related     []SearchResult   `json:"related,omitempty"`
}

// Cluster groups near-duplicate results under a primary.
type Cluster struct {
	Primary SearchResult
	Related []SearchResult
}

// Segment is one unit of a segmented query.
type Segment struct {
	// Text is the segment as it appeared in the query.
	Text string

	// Words are the normalised words of the segment.
	Words []string

	// Phrase is true when the segment matched a lexicon phrase.
	Phrase bool
}

// Segmentation is the result of splitting a query into segments.
type Segmentation struct {
	Segments []Segment

	// Terms is the flat list of normalised query words.
	Terms []string
}

// HasPhrases reports whether any segment is a recognised phrase.
func (s Segmentation) HasPhrases() bool {
	for i := range s.Segments {
		if s.Segments[i].Phrase {
			return true
		}
	}
	return false
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// Mode selects the retrieval sources. Empty means hybrid.
	Mode SearchMode

	// SkipReRank returns results in fusion order.
	SkipReRank bool

	// SkipClustering disables near-duplicate merging.
	SkipClustering bool

	// IncludeRelated attaches clustered near-duplicates to their primary.
	IncludeRelated bool
}

// SearchResponse is the outcome of one search.
type SearchResponse struct {
	// ID identifies this search run in logs.
	ID string

	Query string

	// Residual is the free text left after stripping filters.
	Residual string

	// Filters are the filters that were applied.
	Filters []Filter

	Segments Segmentation

	Results []SearchResult

	// Degraded lists the retrieval sources that failed and were dropped.
	Degraded []string

	// Cancelled is true when the search was abandoned and results are partial.
	Cancelled bool

	CacheHit bool

	Duration time.Duration
}

// Clone returns a copy of r that shares no slices or signals with it.
func (r *SearchResponse) Clone() *SearchResponse {
	cp := *r
	cp.Filters = append([]Filter(nil), r.Filters...)
	cp.Degraded = append([]string(nil), r.Degraded...)
	cp.Segments.Terms = append([]string(nil), r.Segments.Terms...)
	if r.Segments.Segments != nil {
		cp.Segments.Segments = make([]Segment, len(r.Segments.Segments))
		for i, seg := range r.Segments.Segments {
			seg.Words = append([]string(nil), seg.Words...)
			cp.Segments.Segments[i] = seg
		}
	}
	cp.Results = cloneResults(r.Results)
	return &cp
}

func cloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		if res.Signals != nil {
			signals := *res.Signals
			res.Signals = &signals
		}
		res.Related = cloneResults(res.Related)
		out[i] = res
	}
	return out
}
