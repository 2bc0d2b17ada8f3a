package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Snapshot kinds, the primary key of the snapshots table.
const (
	embeddingSnapshotKind = "embeddings"
	graphSnapshotKind     = "graph"
)

// ==================== Embedding Store ====================

// embeddingStore implements driven.EmbeddingStore.
type embeddingStore struct {
	store *Store
}

var _ driven.EmbeddingStore = (*embeddingStore)(nil)

// Load reads the embedding snapshot. Returns domain.ErrNotFound when none
// was saved.
func (s *embeddingStore) Load(ctx context.Context) (*domain.EmbeddingSnapshot, error) {
	var snap domain.EmbeddingSnapshot
	if err := s.store.loadSnapshot(ctx, embeddingSnapshotKind, &snap); err != nil {
		return nil, err
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string]domain.EmbeddingEntry)
	}
	return &snap, nil
}

// Save replaces the stored snapshot.
func (s *embeddingStore) Save(ctx context.Context, snapshot *domain.EmbeddingSnapshot) error {
	if snapshot == nil {
		return domain.ErrInvalidInput
	}
	return s.store.saveSnapshot(ctx, embeddingSnapshotKind, snapshot.Version, snapshot)
}

// Clear removes the stored snapshot.
func (s *embeddingStore) Clear(ctx context.Context) error {
	return s.store.clearSnapshot(ctx, embeddingSnapshotKind)
}

// ==================== Graph Store ====================

// graphStore implements driven.GraphStore.
type graphStore struct {
	store *Store
}

var _ driven.GraphStore = (*graphStore)(nil)

// Load reads the graph snapshot. Returns domain.ErrNotFound when none was
// saved.
func (s *graphStore) Load(ctx context.Context) (*domain.GraphSnapshot, error) {
	var snap domain.GraphSnapshot
	if err := s.store.loadSnapshot(ctx, graphSnapshotKind, &snap); err != nil {
		return nil, err
	}
	if snap.Entries == nil {
		snap.Entries = make(map[string]domain.GraphScore)
	}
	return &snap, nil
}

// Save replaces the stored snapshot.
func (s *graphStore) Save(ctx context.Context, snapshot *domain.GraphSnapshot) error {
	if snapshot == nil {
		return domain.ErrInvalidInput
	}
	return s.store.saveSnapshot(ctx, graphSnapshotKind, snapshot.Version, snapshot)
}

// Clear removes the stored snapshot.
func (s *graphStore) Clear(ctx context.Context) error {
	return s.store.clearSnapshot(ctx, graphSnapshotKind)
}

// ==================== Snapshot Rows ====================

// snapshotHeader is the part of every snapshot document read before the body
// is decoded.
type snapshotHeader struct {
	Version *int `json:"version"`
}

// saveSnapshot stores v as the JSON document of kind, replacing any previous one.
func (s *Store) saveSnapshot(ctx context.Context, kind string, version int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s snapshot: %w", kind, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (kind, version, saved_at, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			version = excluded.version,
			saved_at = excluded.saved_at,
			body = excluded.body
	`, kind, version, formatTime(time.Now()), string(body)); err != nil {
		return fmt.Errorf("saving %s snapshot: %w", kind, err)
	}
	return nil
}

// loadSnapshot decodes the JSON document of kind into v. A document without
// a version field, or whose version disagrees with its row, is reported as
// domain.ErrSnapshotVersion.
func (s *Store) loadSnapshot(ctx context.Context, kind string, v any) error {
	var (
		version int
		body    string
	)
	row := s.db.QueryRowContext(ctx, "SELECT version, body FROM snapshots WHERE kind = ?", kind)
	if err := row.Scan(&version, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading %s snapshot: %w", kind, err)
	}

	var header snapshotHeader
	if err := json.Unmarshal([]byte(body), &header); err != nil {
		return fmt.Errorf("decoding %s snapshot: %w", kind, err)
	}
	if header.Version == nil {
		return fmt.Errorf("%s snapshot has no version: %w", kind, domain.ErrSnapshotVersion)
	}
	if *header.Version != version {
		return fmt.Errorf("%s snapshot body v%d, row v%d: %w", kind, *header.Version, version, domain.ErrSnapshotVersion)
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decoding %s snapshot: %w", kind, err)
	}
	return nil
}

func (s *Store) clearSnapshot(ctx context.Context, kind string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("clearing %s snapshot: %w", kind, err)
	}
	return nil
}
