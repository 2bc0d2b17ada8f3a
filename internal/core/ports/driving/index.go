package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// IndexService builds and maintains the derived indexes.
type IndexService interface {
	// Rebuild indexes the whole corpus from scratch, reusing valid cached entries.
	Rebuild(ctx context.Context) (*domain.IndexStats, error)

	// Start consumes corpus change events until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop flushes pending work and stops consuming events.
	Stop() error

	// Status reports the current indexer state.
	Status() domain.IndexStatus
}

// GraphService exposes link-graph importance.
type GraphService interface {
	// Score returns the normalised importance of a document, 0 if unknown.
	Score(id string) float64

	// Top returns the n most important documents.
	Top(n int) []domain.ImportanceScore
}

// UsageService records document accesses from external actors.
type UsageService interface {
	// RecordAccess logs a document view and its dwell time.
	RecordAccess(ctx context.Context, documentID string, dwell time.Duration) error
}
