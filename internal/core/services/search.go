package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// DefaultSearchLimit is the page size when none is given.
const DefaultSearchLimit = 20

// sourceDepthFactor sizes each retrieval list relative to the requested page.
const sourceDepthFactor = 3

// SearchDeps are the collaborators of a SearchService.
// Engine, Embeddings and Usage are optional.
type SearchDeps struct {
	Engine     driven.SearchEngine
	Embeddings *EmbeddingIndex
	Graph      *DocumentGraph
	Segmenter  *QuerySegmenter
	Corpus     driven.Corpus
	Usage      driven.UsageProvider
	Clock      clock.Clock
}

// SearchService runs hybrid retrieval: keyword and semantic lists are
// fetched concurrently, fused, re-ranked, filtered, clustered and cached.
type SearchService struct {
	deps SearchDeps

	mu        sync.RWMutex
	settings  domain.Settings
	reranker  *ReRanker
	clusterer *ResultClusterer
	cache     *expirable.LRU[string, *domain.SearchResponse]

	// semanticOn is the semantic availability the cache was filled under.
	semanticOn bool
}

// NewSearchService creates a search service.
func NewSearchService(deps SearchDeps, settings domain.Settings) *SearchService {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Segmenter == nil {
		deps.Segmenter = NewQuerySegmenter()
	}
	s := &SearchService{deps: deps}
	s.ApplySettings(settings)
	s.semanticOn = s.semanticAvailable()
	return s
}

// ApplySettings swaps the ranking configuration and drops cached responses.
func (s *SearchService) ApplySettings(settings domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache == nil || settings.Cache != s.settings.Cache {
		size := settings.Cache.MaxEntries
		if size <= 0 {
			size = domain.DefaultSettings().Cache.MaxEntries
		}
		s.cache = expirable.NewLRU[string, *domain.SearchResponse](size, nil, settings.Cache.TTL)
	} else {
		s.cache.Purge()
	}

	s.settings = settings
	var graph importanceSource
	if s.deps.Graph != nil {
		graph = s.deps.Graph
	}
	s.reranker = NewReRanker(s.deps.Corpus, graph, s.deps.Usage, settings.ReRank)
	if s.deps.Embeddings != nil {
		s.clusterer = NewResultClusterer(s.deps.Embeddings, settings.Cluster.Threshold)
	} else {
		s.clusterer = nil
	}
}

// InvalidateCache drops every cached search response.
func (s *SearchService) InvalidateCache() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.cache.Purge()
	logger.Debug("search: cache invalidated")
}

func (s *SearchService) semanticAvailable() bool {
	return s.deps.Embeddings != nil && s.deps.Embeddings.Available() && s.deps.Embeddings.Len() > 0
}

// checkSemanticAvailability purges the cache when semantic retrieval turned
// on or off since the cached responses were computed.
func (s *SearchService) checkSemanticAvailability() {
	now := s.semanticAvailable()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != s.semanticOn {
		logger.Debug("search: semantic availability changed to %t, invalidating cache", now)
		s.semanticOn = now
		s.cache.Purge()
	}
}

// Search performs hybrid search. Failing sources are dropped and listed in
// Degraded; a cancelled search returns what it has with Cancelled set.
// Neither is reported as an error.
func (s *SearchService) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	start := s.deps.Clock.Now()
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	s.mu.RLock()
	settings := s.settings
	reranker := s.reranker
	clusterer := s.clusterer
	cache := s.cache
	s.mu.RUnlock()

	query = strings.TrimSpace(query)
	opts = normalizeOptions(opts, settings)
	resp := &domain.SearchResponse{ID: uuid.NewString(), Query: query, Results: []domain.SearchResult{}}
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return resp, nil
	}

	s.checkSemanticAvailability()
	key := cacheKey(query, opts)
	if cached, ok := cache.Get(key); ok {
		hit := cached.Clone()
		hit.ID = resp.ID
		hit.CacheHit = true
		hit.Duration = s.deps.Clock.Now().Sub(start)
		logger.Debug("Cache hit: %d results", len(hit.Results))
		return hit, nil
	}

	parsed, err := ParseQuery(query)
	if err != nil {
		logger.Warn("Ignoring malformed filters: %v", err)
	}
	resp.Residual = parsed.Residual
	resp.Filters = parsed.Filters
	logger.Debug("Residual: %q, filters: %d", parsed.Residual, len(parsed.Filters))

	var results []domain.SearchResult
	if strings.TrimSpace(parsed.Residual) == "" {
		results = s.listByImportance(parsed.Filters)
		logger.Debug("Filter-only query: %d documents", len(results))
	} else {
		results = s.rank(ctx, resp, opts, settings, reranker, clusterer)
	}

	s.attachTitles(results)
	resp.Results = paginate(results, opts.Offset, opts.Limit)
	resp.Duration = s.deps.Clock.Now().Sub(start)

	if resp.Cancelled {
		logger.Debug("Search cancelled, returning %d partial results", len(resp.Results))
		return resp, nil
	}
	cache.Add(key, resp)
	logger.Info("Final results: %d", len(resp.Results))

	return resp.Clone(), nil
}

// rank runs retrieval, fusion, re-ranking, filtering and clustering.
// It sets Segments, Degraded and Cancelled on resp.
func (s *SearchService) rank(
	ctx context.Context,
	resp *domain.SearchResponse,
	opts domain.SearchOptions,
	settings domain.Settings,
	reranker *ReRanker,
	clusterer *ResultClusterer,
) []domain.SearchResult {
	resp.Segments = s.deps.Segmenter.Segment(resp.Residual)
	logger.Debug("Segments: %d (phrases: %t)", len(resp.Segments.Segments), resp.Segments.HasPhrases())

	depth := max(settings.ReRank.PoolSize, (opts.Offset+opts.Limit)*sourceDepthFactor)
	keyword, semantic := s.retrieve(ctx, resp, opts.Mode, depth)
	if ctx.Err() != nil {
		resp.Cancelled = true
	}

	fused := Fuse(keyword, semantic, settings.Fusion)
	logger.Debug("Fused: %d (keyword %d, semantic %d)", len(fused), len(keyword), len(semantic))

	var results []domain.SearchResult
	if opts.SkipReRank || resp.Cancelled {
		results = FusionResults(fused)
	} else {
		var err error
		results, err = reranker.Rerank(ctx, resp.Residual, resp.Segments, fused)
		if err != nil {
			resp.Cancelled = true
		}
	}

	results = s.applyFilters(results, resp.Filters)

	if !opts.SkipClustering && clusterer != nil && !resp.Cancelled {
		clusters, err := clusterer.Cluster(ctx, results)
		if err != nil {
			resp.Cancelled = true
		} else {
			logger.Debug("Clusters: %d from %d results", len(clusters), len(results))
			results = Flatten(clusters, opts.IncludeRelated)
		}
	}
	return results
}

// retrieve queries the enabled sources concurrently. A failing source is
// recorded in resp.Degraded and contributes nothing.
func (s *SearchService) retrieve(
	ctx context.Context,
	resp *domain.SearchResponse,
	mode domain.SearchMode,
	depth int,
) (keyword, semantic []domain.RankedCandidate) {
	var g errgroup.Group
	var kwErr, semErr error

	if mode.UsesKeyword() {
		if s.deps.Engine == nil {
			logger.Debug("Keyword search unavailable: no engine")
		} else {
			g.Go(func() error {
				hits, err := s.deps.Engine.Search(ctx, resp.Residual, depth)
				if err != nil {
					kwErr = err
					return nil
				}
				keyword = CandidatesFromHits(hits)
				return nil
			})
		}
	}

	if mode.UsesSemantic() {
		if s.deps.Embeddings == nil || !s.deps.Embeddings.Available() {
			logger.Debug("Semantic search unavailable: no embedding provider")
		} else {
			g.Go(func() error {
				candidates, err := s.deps.Embeddings.Search(ctx, resp.Residual, depth)
				if err != nil {
					semErr = err
					return nil
				}
				semantic = candidates
				return nil
			})
		}
	}

	_ = g.Wait()

	if ctx.Err() != nil {
		return keyword, semantic
	}
	if kwErr != nil {
		logger.Warn("Keyword search failed, continuing without it: %v", kwErr)
		resp.Degraded = append(resp.Degraded, string(domain.SourceKeyword))
	}
	if semErr != nil {
		logger.Warn("Semantic search failed, continuing without it: %v", semErr)
		resp.Degraded = append(resp.Degraded, string(domain.SourceSemantic))
	}
	return keyword, semantic
}

// applyFilters keeps results whose documents satisfy every filter.
// Documents the graph does not know are dropped when filters are present.
func (s *SearchService) applyFilters(results []domain.SearchResult, filters []domain.Filter) []domain.SearchResult {
	if len(filters) == 0 || s.deps.Graph == nil {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		info, ok := s.deps.Graph.Info(r.DocumentID)
		if ok && MatchFilters(filters, info) {
			kept = append(kept, r)
		}
	}
	logger.Debug("After filters: %d of %d results", len(kept), len(results))
	return kept
}

// listByImportance lists documents matching the filters by importance.
func (s *SearchService) listByImportance(filters []domain.Filter) []domain.SearchResult {
	if s.deps.Graph == nil {
		return []domain.SearchResult{}
	}
	var results []domain.SearchResult
	for _, info := range s.deps.Graph.Documents() {
		if !MatchFilters(filters, info) {
			continue
		}
		results = append(results, domain.SearchResult{
			DocumentID: info.ID,
			Score:      s.deps.Graph.Score(info.ID),
			Source:     domain.SourceFilter,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// attachTitles fills result titles from the graph's document metadata.
func (s *SearchService) attachTitles(results []domain.SearchResult) {
	for i := range results {
		results[i].Title = s.titleOf(results[i].DocumentID)
		for j := range results[i].Related {
			results[i].Related[j].Title = s.titleOf(results[i].Related[j].DocumentID)
		}
	}
}

func (s *SearchService) titleOf(id string) string {
	if s.deps.Graph != nil {
		if info, ok := s.deps.Graph.Info(id); ok {
			return info.DisplayTitle()
		}
	}
	return domain.DocumentInfo{ID: id}.DisplayTitle()
}

// normalizeOptions applies the default limit and mode.
func normalizeOptions(opts domain.SearchOptions, settings domain.Settings) domain.SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Mode == "" {
		opts.Mode = settings.Mode
	}
	if !opts.Mode.IsValid() {
		logger.Warn("Unknown search mode %q, using hybrid", opts.Mode)
		opts.Mode = domain.SearchModeHybrid
	}
	return opts
}

// cacheKey identifies a query and the options that shape its response.
func cacheKey(query string, opts domain.SearchOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s\x00%t\x00%t\x00%t",
		query, opts.Limit, opts.Offset, opts.Mode, opts.SkipReRank, opts.SkipClustering, opts.IncludeRelated)
	return hex.EncodeToString(h.Sum(nil))
}

// paginate returns the requested page of results.
func paginate(results []domain.SearchResult, offset, limit int) []domain.SearchResult {
	if offset >= len(results) {
		return []domain.SearchResult{}
	}
	end := min(offset+limit, len(results))
	return results[offset:end]
}
