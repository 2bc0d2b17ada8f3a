package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// Corpus is the document store being ranked. The core never writes to it.
type Corpus interface {
	// List returns content-free snapshots of every live document.
	List(ctx context.Context) ([]domain.DocumentInfo, error)

	// Get returns a document with its content.
	// Returns domain.ErrNotFound if the document does not exist.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// Subscribe streams change events until ctx is cancelled, then closes the channel.
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error)
}
