package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

var (
	searchLimit     int
	searchOffset    int
	searchMode      string
	searchNoReRank  bool
	searchNoCluster bool
	searchRelated   bool
	searchSignals   bool
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the vault",
	Long: `Performs hybrid search across the vault.
Keyword (BM25) and semantic (embedding) results are fused with reciprocal rank
fusion, then re-ranked by title match, recency, usage, term density, link-graph
importance and term proximity.

Filters can be mixed into the query:
  tag:project          notes tagged #project
  path:~journal/       notes whose path contains journal/
  title:"weekly review"
  status:done          frontmatter field status equals done
  tag:-archive         skip notes tagged #archive
  modified:>=2024-01   notes modified since January 2024`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "number of results to skip")
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "keyword, semantic or hybrid (default from settings)")
	searchCmd.Flags().BoolVar(&searchNoReRank, "no-rerank", false, "return results in fusion order")
	searchCmd.Flags().BoolVar(&searchNoCluster, "no-cluster", false, "keep near-duplicate results separate")
	searchCmd.Flags().BoolVar(&searchRelated, "related", false, "list near-duplicates under each result")
	searchCmd.Flags().BoolVar(&searchSignals, "signals", false, "show the ranking signals of each result")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	mode := domain.SearchMode(searchMode)
	if mode != "" && !mode.IsValid() {
		return fmt.Errorf("unknown search mode %q (use keyword, semantic or hybrid)", searchMode)
	}

	opts := domain.SearchOptions{
		Limit:          searchLimit,
		Offset:         searchOffset,
		Mode:           mode,
		SkipReRank:     searchNoReRank,
		SkipClustering: searchNoCluster,
		IncludeRelated: searchRelated,
	}

	resp, err := searchService.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, resp)
	}

	return outputSearchTable(cmd, resp)
}

func outputSearchJSON(cmd *cobra.Command, resp *domain.SearchResponse) error {
	out := struct {
		Query    string                `json:"query"`
		Results  []domain.SearchResult `json:"results"`
		Degraded []string              `json:"degraded,omitempty"`
		Partial  bool                  `json:"partial,omitempty"`
	}{
		Query:    resp.Query,
		Results:  resp.Results,
		Degraded: resp.Degraded,
		Partial:  resp.Cancelled,
	}
	if out.Results == nil {
		out.Results = []domain.SearchResult{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, resp *domain.SearchResponse) error {
	if len(resp.Degraded) > 0 {
		cmd.Printf("Warning: %s search unavailable, results may be incomplete\n",
			strings.Join(resp.Degraded, " and "))
	}
	if resp.Cancelled {
		cmd.Println("Warning: search was interrupted, results are partial")
	}

	results := resp.Results
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		// Format: [N] Title (Score) source
		cmd.Printf("  [%d] %s (%.2f) %s\n", searchOffset+i+1, resultTitle(r), r.Score, r.Source)
		cmd.Printf("      %s\n", r.DocumentID)
		if r.Excerpt != "" {
			cmd.Printf("      %s\n", r.Excerpt)
		}
		if searchSignals && r.Signals != nil {
			s := r.Signals
			cmd.Printf("      title=%.2f recency=%.2f usage=%.2f density=%.2f importance=%.2f proximity=%.2f\n",
				s.Title, s.Recency, s.Usage, s.Density, s.Importance, s.Proximity)
		}
		for j := range r.Related {
			cmd.Printf("      ~ %s (%s)\n", resultTitle(&r.Related[j]), r.Related[j].DocumentID)
		}
		cmd.Println()
	}

	return nil
}

func resultTitle(r *domain.SearchResult) string {
	if r.Title != "" {
		return r.Title
	}
	return r.DocumentID
}
