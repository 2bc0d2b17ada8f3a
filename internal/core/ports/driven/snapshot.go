package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// EmbeddingStore persists the embedding index snapshot.
type EmbeddingStore interface {
	// Load returns the stored snapshot.
	// Returns domain.ErrNotFound if nothing was saved yet.
	Load(ctx context.Context) (*domain.EmbeddingSnapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot *domain.EmbeddingSnapshot) error

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error
}

// GraphStore persists the last computed importance scores.
type GraphStore interface {
	// Load returns the stored snapshot.
	// Returns domain.ErrNotFound if nothing was saved yet.
	Load(ctx context.Context) (*domain.GraphSnapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot *domain.GraphSnapshot) error

	// Clear removes the stored snapshot.
	Clear(ctx context.Context) error
}
