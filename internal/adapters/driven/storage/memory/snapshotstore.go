package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Ensure the snapshot stores implement the interfaces.
var (
	_ driven.EmbeddingStore = (*EmbeddingStore)(nil)
	_ driven.GraphStore     = (*GraphStore)(nil)
)

// snapshotStore holds one snapshot value.
type snapshotStore[T any] struct {
	mu    sync.RWMutex
	value *T
	saves int
}

func (s *snapshotStore[T]) load() (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value == nil {
		return nil, domain.ErrNotFound
	}
	return s.value, nil
}

func (s *snapshotStore[T]) save(v *T) error {
	if v == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.saves++
	return nil
}

func (s *snapshotStore[T]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = nil
}

// Saves returns how many snapshots were saved.
func (s *snapshotStore[T]) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// EmbeddingStore is an in-memory implementation of driven.EmbeddingStore.
type EmbeddingStore struct {
	snapshotStore[domain.EmbeddingSnapshot]
}

// NewEmbeddingStore creates an empty embedding store.
func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{}
}

// Load returns the stored snapshot or domain.ErrNotFound.
func (s *EmbeddingStore) Load(_ context.Context) (*domain.EmbeddingSnapshot, error) {
	return s.load()
}

// Save replaces the stored snapshot.
func (s *EmbeddingStore) Save(_ context.Context, snapshot *domain.EmbeddingSnapshot) error {
	return s.save(snapshot)
}

// Clear drops the stored snapshot.
func (s *EmbeddingStore) Clear(_ context.Context) error {
	s.clear()
	return nil
}

// GraphStore is an in-memory implementation of driven.GraphStore.
type GraphStore struct {
	snapshotStore[domain.GraphSnapshot]
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// Load returns the stored snapshot or domain.ErrNotFound.
func (s *GraphStore) Load(_ context.Context) (*domain.GraphSnapshot, error) {
	return s.load()
}

// Save replaces the stored snapshot.
func (s *GraphStore) Save(_ context.Context, snapshot *domain.GraphSnapshot) error {
	return s.save(snapshot)
}

// Clear drops the stored snapshot.
func (s *GraphStore) Clear(_ context.Context) error {
	s.clear()
	return nil
}
