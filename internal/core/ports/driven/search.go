package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// SearchEngine provides full-text keyword search operations.
// It is consumed as an opaque ranked source; its scoring model is its own.
type SearchEngine interface {
	// Index adds or updates a document in the search index.
	Index(ctx context.Context, doc domain.Document) error

	// Delete removes a document from the search index.
	Delete(ctx context.Context, documentID string) error

	// Search performs a keyword search and returns hits ordered best first.
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)

	// Close releases resources.
	Close() error
}

// SearchHit represents a search result from the engine.
type SearchHit struct {
	// DocumentID is the matched document.
	DocumentID string

	// Score is the relevance score. Higher is better.
	Score float64

	// MatchedTerms are the query terms found in the document.
	MatchedTerms []string

	// Snippet is an engine-provided excerpt, if any.
	Snippet string

	// Metadata carries engine-specific fields.
	Metadata map[string]string
}
