package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestEmbeddingEntry_IsValidFor tests cache validity by time and hash
func TestEmbeddingEntry_IsValidFor(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := EmbeddingEntry{ContentHash: "h1", ModifiedAt: base}

	assert.True(t, entry.IsValidFor(base, "h1"))
	assert.True(t, entry.IsValidFor(base.Add(-time.Hour), "h1"))
	assert.False(t, entry.IsValidFor(base.Add(time.Second), "h1"))
	assert.False(t, entry.IsValidFor(base, "h2"))
}

// TestGraphSnapshot_IsValidFor tests snapshot coverage and staleness
func TestGraphSnapshot_IsValidFor(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := GraphSnapshot{
		Version: GraphSnapshotVersion,
		Entries: map[string]GraphScore{
			"a": {Score: 1, ModifiedAt: base},
			"b": {Score: 0.5, ModifiedAt: base},
		},
	}

	docs := []DocumentInfo{{ID: "a", ModifiedAt: base}, {ID: "b", ModifiedAt: base}}
	assert.True(t, snap.IsValidFor(docs))

	t.Run("newer document", func(t *testing.T) {
		stale := []DocumentInfo{{ID: "a", ModifiedAt: base}, {ID: "b", ModifiedAt: base.Add(time.Minute)}}
		assert.False(t, snap.IsValidFor(stale))
	})

	t.Run("different document set", func(t *testing.T) {
		assert.False(t, snap.IsValidFor(docs[:1]))
		assert.False(t, snap.IsValidFor([]DocumentInfo{{ID: "a"}, {ID: "c"}}))
	})

	t.Run("old version", func(t *testing.T) {
		old := snap
		old.Version = GraphSnapshotVersion + 1
		assert.False(t, old.IsValidFor(docs))
	})
}
