package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Ensure UsageStore implements the interfaces.
var (
	_ driven.UsageProvider = (*UsageStore)(nil)
	_ driven.UsageRecorder = (*UsageStore)(nil)
)

// UsageStore keeps document accesses in memory.
type UsageStore struct {
	mu       sync.RWMutex
	clock    clock.Clock
	accesses map[string][]domain.Access
}

// NewUsageStore creates an empty usage store. A nil clock uses real time.
func NewUsageStore(clk clock.Clock) *UsageStore {
	if clk == nil {
		clk = clock.New()
	}
	return &UsageStore{
		clock:    clk,
		accesses: make(map[string][]domain.Access),
	}
}

// RecordAccess logs a view of a document.
func (s *UsageStore) RecordAccess(_ context.Context, documentID string, dwell time.Duration) error {
	if documentID == "" {
		return fmt.Errorf("record access: empty document id: %w", domain.ErrInvalidInput)
	}
	if dwell < 0 {
		dwell = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accesses[documentID] = append(s.accesses[documentID], domain.Access{
		DocumentID: documentID,
		At:         s.clock.Now(),
		Dwell:      dwell,
	})
	return nil
}

// Signals returns the usage signals of a document; zero when never accessed.
func (s *UsageStore) Signals(_ context.Context, documentID string) (domain.UsageSignals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ComputeUsageSignals(s.accesses[documentID], s.clock.Now()), nil
}

// Count returns the number of recorded accesses of a document.
func (s *UsageStore) Count(documentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accesses[documentID])
}
