package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

const defaultToolLimit = 10

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query          string `json:"query" jsonschema:"the search query; supports tag:, path:, title: and field:value filters"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Offset         int    `json:"offset,omitempty" jsonschema:"number of results to skip"`
	Mode           string `json:"mode,omitempty" jsonschema:"keyword, semantic or hybrid (default hybrid)"`
	IncludeRelated bool   `json:"include_related,omitempty" jsonschema:"attach near-duplicate notes to each result"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results  []SearchResultOutput `json:"results"`
	Count    int                  `json:"count"`
	Degraded []string             `json:"degraded,omitempty"`
	Partial  bool                 `json:"partial,omitempty"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID string               `json:"document_id"`
	Title      string               `json:"title"`
	URI        string               `json:"uri"`
	Score      float64              `json:"score"`
	Source     string               `json:"source"`
	Excerpt    string               `json:"excerpt,omitempty"`
	Related    []SearchResultOutput `json:"related,omitempty"`
}

// RecordAccessInput is the input schema for the record_access tool.
type RecordAccessInput struct {
	DocumentID   string  `json:"document_id" jsonschema:"the id of the note that was opened"`
	DwellSeconds float64 `json:"dwell_seconds,omitempty" jsonschema:"how long the note was read; 0 when unknown"`
}

// RecordAccessOutput is the output schema for the record_access tool.
type RecordAccessOutput struct {
	Recorded bool `json:"recorded"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the notes vault with hybrid keyword and semantic ranking",
	}, s.handleSearch)

	if s.ports.Usage != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "record_access",
			Description: "Record that a note was opened so future rankings reflect usage",
		}, s.handleRecordAccess)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultToolLimit
	}
	mode := domain.SearchMode(input.Mode)
	if mode != "" && !mode.IsValid() {
		return nil, SearchOutput{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, input.Mode)
	}

	opts := domain.SearchOptions{
		Limit:          limit,
		Offset:         input.Offset,
		Mode:           mode,
		IncludeRelated: input.IncludeRelated,
	}
	resp, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results:  toResultOutputs(resp.Results),
		Count:    len(resp.Results),
		Degraded: resp.Degraded,
		Partial:  resp.Cancelled,
	}
	return nil, output, nil
}

func toResultOutputs(results []domain.SearchResult) []SearchResultOutput {
	out := make([]SearchResultOutput, len(results))
	for i := range results {
		r := &results[i]
		out[i] = SearchResultOutput{
			DocumentID: r.DocumentID,
			Title:      r.Title,
			URI:        documentURI(r.DocumentID),
			Score:      r.Score,
			Source:     string(r.Source),
			Excerpt:    r.Excerpt,
		}
		if len(r.Related) > 0 {
			out[i].Related = toResultOutputs(r.Related)
		}
	}
	return out
}

// handleRecordAccess handles the record_access tool invocation.
func (s *Server) handleRecordAccess(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RecordAccessInput,
) (*mcp.CallToolResult, RecordAccessOutput, error) {
	if input.DwellSeconds < 0 {
		return nil, RecordAccessOutput{}, fmt.Errorf("%w: negative dwell", domain.ErrInvalidInput)
	}
	dwell := time.Duration(input.DwellSeconds * float64(time.Second))
	if err := s.ports.Usage.RecordAccess(ctx, input.DocumentID, dwell); err != nil {
		return nil, RecordAccessOutput{}, err
	}
	return nil, RecordAccessOutput{Recorded: true}, nil
}
