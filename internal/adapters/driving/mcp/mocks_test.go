package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response *domain.SearchResponse
	err      error

	gotQuery string
	gotOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	opts domain.SearchOptions,
) (*domain.SearchResponse, error) {
	m.gotQuery = query
	m.gotOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response == nil {
		return &domain.SearchResponse{Query: query}, nil
	}
	return m.response, nil
}

func (m *mockSearchService) InvalidateCache() {}

// mockUsageService is a mock implementation of driving.UsageService.
type mockUsageService struct {
	err error

	gotID    string
	gotDwell time.Duration
}

func (m *mockUsageService) RecordAccess(_ context.Context, documentID string, dwell time.Duration) error {
	m.gotID = documentID
	m.gotDwell = dwell
	return m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	top []domain.ImportanceScore
}

func (m *mockGraphService) Score(id string) float64 {
	for _, s := range m.top {
		if s.DocumentID == id {
			return s.Score
		}
	}
	return 0
}

func (m *mockGraphService) Top(n int) []domain.ImportanceScore {
	if n < len(m.top) {
		return m.top[:n]
	}
	return m.top
}

// mockDocumentReader is a mock implementation of DocumentReader.
type mockDocumentReader struct {
	docs map[string]*domain.Document
	err  error
}

func (m *mockDocumentReader) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}
