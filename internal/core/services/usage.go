package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure UsageService implements the interface.
var _ driving.UsageService = (*UsageService)(nil)

// UsageService records document accesses reported by clients.
type UsageService struct {
	recorder driven.UsageRecorder
	cache    cacheInvalidator
}

// NewUsageService creates a usage service. cache, when set, is invalidated
// after each access since usage signals feed ranking.
func NewUsageService(recorder driven.UsageRecorder, cache cacheInvalidator) *UsageService {
	return &UsageService{recorder: recorder, cache: cache}
}

// RecordAccess logs a document view and its dwell time.
func (s *UsageService) RecordAccess(ctx context.Context, documentID string, dwell time.Duration) error {
	if documentID == "" {
		return fmt.Errorf("record access: %w", domain.ErrInvalidInput)
	}
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.RecordAccess(ctx, documentID, dwell); err != nil {
		return fmt.Errorf("record access to %s: %w", documentID, err)
	}
	logger.Debug("Recorded access to %s (dwell %s)", documentID, dwell)
	if s.cache != nil {
		s.cache.InvalidateCache()
	}
	return nil
}
