package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// usageHistory bounds the accesses read per document. Older accesses have
// decayed to nothing.
const usageHistory = 500

// UsageStore is the persistent access log. It implements both usage ports.
type UsageStore struct {
	store *Store
	clock clock.Clock
}

var (
	_ driven.UsageProvider = (*UsageStore)(nil)
	_ driven.UsageRecorder = (*UsageStore)(nil)
)

// RecordAccess appends one access. Negative dwell is stored as unmeasured.
func (s *UsageStore) RecordAccess(ctx context.Context, documentID string, dwell time.Duration) error {
	if documentID == "" {
		return fmt.Errorf("record access: empty document id: %w", domain.ErrInvalidInput)
	}
	if dwell < 0 {
		dwell = 0
	}
	_, err := s.store.db.ExecContext(ctx,
		"INSERT INTO usage_events (document_id, accessed_at, dwell_ms) VALUES (?, ?, ?)",
		documentID, formatTime(s.clock.Now()), dwell.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording access: %w", err)
	}
	return nil
}

// Signals computes the usage signals of a document from its recent accesses.
func (s *UsageStore) Signals(ctx context.Context, documentID string) (domain.UsageSignals, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT accessed_at, dwell_ms FROM usage_events
		WHERE document_id = ? ORDER BY accessed_at DESC LIMIT ?
	`, documentID, usageHistory)
	if err != nil {
		return domain.UsageSignals{}, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	var accesses []domain.Access //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			at      string
			dwellMs int64
		)
		if err := rows.Scan(&at, &dwellMs); err != nil {
			return domain.UsageSignals{}, fmt.Errorf("scanning usage: %w", err)
		}
		accessedAt, err := parseTime(at)
		if err != nil {
			return domain.UsageSignals{}, err
		}
		accesses = append(accesses, domain.Access{
			DocumentID: documentID,
			At:         accessedAt,
			Dwell:      time.Duration(dwellMs) * time.Millisecond,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.UsageSignals{}, fmt.Errorf("iterating usage: %w", err)
	}
	return domain.ComputeUsageSignals(accesses, s.clock.Now()), nil
}

// Prune deletes accesses older than the cutoff and returns how many were removed.
func (s *UsageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM usage_events WHERE accessed_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning usage: %w", err)
	}
	return res.RowsAffected()
}

// Rename moves the access history of a document to its new ID.
func (s *UsageStore) Rename(ctx context.Context, oldID, newID string) error {
	if _, err := s.store.db.ExecContext(ctx,
		"UPDATE usage_events SET document_id = ? WHERE document_id = ?", newID, oldID); err != nil {
		return fmt.Errorf("renaming usage: %w", err)
	}
	return nil
}
