package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		mockSearch := &mockSearchService{
			response: &domain.SearchResponse{
				Results: []domain.SearchResult{
					{
						DocumentID: "projects/alpha.md",
						Title:      "Alpha",
						Score:      0.75,
						Source:     domain.SourceBoth,
						Excerpt:    "the alpha plan",
						Related: []domain.SearchResult{
							{DocumentID: "projects/alpha copy.md", Title: "Alpha copy", Score: 0.5},
						},
					},
				},
				Degraded: []string{"semantic"},
			},
		}
		server := newTestServer(t, &Ports{Search: mockSearch})

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "alpha", Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		require.Len(t, output.Results, 1)
		got := output.Results[0]
		assert.Equal(t, "projects/alpha.md", got.DocumentID)
		assert.Equal(t, "Alpha", got.Title)
		assert.Equal(t, "sercha-rank://documents/projects/alpha.md", got.URI)
		assert.InDelta(t, 0.75, got.Score, 1e-9)
		assert.Equal(t, "both", got.Source)
		assert.Equal(t, "the alpha plan", got.Excerpt)
		require.Len(t, got.Related, 1)
		assert.Equal(t, "sercha-rank://documents/projects/alpha%20copy.md", got.Related[0].URI)
		assert.Equal(t, []string{"semantic"}, output.Degraded)
		assert.False(t, output.Partial)
	})

	t.Run("default limit is 10", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server := newTestServer(t, &Ports{Search: mockSearch})

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.NoError(t, err)
		assert.Equal(t, 0, output.Count)
		assert.Equal(t, 10, mockSearch.gotOpts.Limit)
	})

	t.Run("passes options through", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		server := newTestServer(t, &Ports{Search: mockSearch})

		_, _, err := server.handleSearch(ctx, nil, SearchInput{
			Query:          "tag:work plan",
			Limit:          3,
			Offset:         6,
			Mode:           "keyword",
			IncludeRelated: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "tag:work plan", mockSearch.gotQuery)
		assert.Equal(t, domain.SearchOptions{
			Limit:          3,
			Offset:         6,
			Mode:           domain.SearchModeKeyword,
			IncludeRelated: true,
		}, mockSearch.gotOpts)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		server := newTestServer(t, &Ports{Search: &mockSearchService{}})

		_, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "x", Mode: "fuzzy"})

		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("marks cancelled searches as partial", func(t *testing.T) {
		mockSearch := &mockSearchService{response: &domain.SearchResponse{Cancelled: true}}
		server := newTestServer(t, &Ports{Search: mockSearch})

		_, output, err := server.handleSearch(ctx, nil, SearchInput{Query: "x"})

		require.NoError(t, err)
		assert.True(t, output.Partial)
	})

	t.Run("search error is returned", func(t *testing.T) {
		server := newTestServer(t, &Ports{Search: &mockSearchService{err: errors.New("engine down")}})

		_, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "x"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine down")
	})
}

func TestServer_handleRecordAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("records dwell in seconds", func(t *testing.T) {
		usage := &mockUsageService{}
		server := newTestServer(t, &Ports{Search: &mockSearchService{}, Usage: usage})

		_, output, err := server.handleRecordAccess(ctx, nil, RecordAccessInput{
			DocumentID:   "notes/a.md",
			DwellSeconds: 1.5,
		})

		require.NoError(t, err)
		assert.True(t, output.Recorded)
		assert.Equal(t, "notes/a.md", usage.gotID)
		assert.Equal(t, 1500*time.Millisecond, usage.gotDwell)
	})

	t.Run("negative dwell is rejected", func(t *testing.T) {
		usage := &mockUsageService{}
		server := newTestServer(t, &Ports{Search: &mockSearchService{}, Usage: usage})

		_, _, err := server.handleRecordAccess(ctx, nil, RecordAccessInput{DocumentID: "a.md", DwellSeconds: -1})

		require.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Empty(t, usage.gotID)
	})

	t.Run("usage error is returned", func(t *testing.T) {
		usage := &mockUsageService{err: domain.ErrNotFound}
		server := newTestServer(t, &Ports{Search: &mockSearchService{}, Usage: usage})

		_, output, err := server.handleRecordAccess(ctx, nil, RecordAccessInput{DocumentID: "gone.md"})

		require.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, output.Recorded)
	})
}
