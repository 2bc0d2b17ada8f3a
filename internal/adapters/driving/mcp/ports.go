package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
)

// DocumentReader reads full documents for resource requests.
type DocumentReader interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
}

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Usage records accesses. Without it the record_access tool is not offered.
	Usage driving.UsageService

	// Graph exposes importance scores for the top-documents resource.
	Graph driving.GraphService

	// Documents serves document content resources.
	Documents DocumentReader
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
