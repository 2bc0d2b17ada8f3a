package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search runs hybrid retrieval and ranking for a query.
	// Source failures and cancellation degrade the response instead of failing it.
	Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error)

	// InvalidateCache drops every cached search response.
	InvalidateCache()
}
