package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// UsageProvider exposes behavioural signals per document. Read-only.
type UsageProvider interface {
	// Signals returns the usage scores for a document.
	// Unknown documents return zero signals and no error.
	Signals(ctx context.Context, documentID string) (domain.UsageSignals, error)
}

// UsageRecorder records document accesses that feed a UsageProvider.
type UsageRecorder interface {
	// RecordAccess logs that a document was opened and how long it was viewed.
	RecordAccess(ctx context.Context, documentID string, dwell time.Duration) error
}
