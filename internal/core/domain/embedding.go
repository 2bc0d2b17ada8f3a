package domain

import "time"

// Snapshot versions. Bump when the persisted layout changes; any mismatch on
// load discards the whole snapshot.
const (
	EmbeddingSnapshotVersion = 3
	GraphSnapshotVersion     = 1
)

// Chunk is a searchable unit within a document, produced by the chunking pipeline.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent document.
	DocumentID string

	// Content is the text sent to the embedding provider.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// ChunkEmbedding is the vector for one chunk of a document.
type ChunkEmbedding struct {
	Vector   []float32 `json:"vector"`
	Text     string    `json:"text"`
	Position int       `json:"position"`
}

// EmbeddingEntry holds all chunk vectors of one document.
type EmbeddingEntry struct {
	ContentHash string           `json:"content_hash"`
	ModifiedAt  time.Time        `json:"modified_at"`
	Chunks      []ChunkEmbedding `json:"chunks"`
}

// IsValidFor reports whether the entry can be reused for a document with the
// given modification time and content hash.
func (e EmbeddingEntry) IsValidFor(modifiedAt time.Time, contentHash string) bool {
	if modifiedAt.After(e.ModifiedAt) {
		return false
	}
	return e.ContentHash == contentHash
}

// EmbeddingSnapshot is the persisted form of the embedding index.
type EmbeddingSnapshot struct {
	Version   int                       `json:"version"`
	Model     string                    `json:"model"`
	Dimension int                       `json:"dimension"`
	Entries   map[string]EmbeddingEntry `json:"entries"`
}

// GraphScore is the persisted importance of one document.
type GraphScore struct {
	Score      float64   `json:"score"`
	Raw        float64   `json:"raw"`
	ModifiedAt time.Time `json:"modified_at"`
}

// GraphSnapshot is the persisted form of the last PageRank computation.
type GraphSnapshot struct {
	Version    int                   `json:"version"`
	ComputedAt time.Time             `json:"computed_at"`
	Entries    map[string]GraphScore `json:"entries"`
}

// IsValidFor reports whether the snapshot covers exactly the given documents
// and none of them changed after it was computed.
func (s GraphSnapshot) IsValidFor(docs []DocumentInfo) bool {
	if s.Version != GraphSnapshotVersion || len(s.Entries) != len(docs) {
		return false
	}
	for i := range docs {
		entry, ok := s.Entries[docs[i].ID]
		if !ok || docs[i].ModifiedAt.After(entry.ModifiedAt) {
			return false
		}
	}
	return true
}

// UsageSignals are behavioural scores for one document, each in [0,1].
type UsageSignals struct {
	// Recency is an access-based exponential decay.
	Recency float64

	// Frequency is a usage frequency score.
	Frequency float64

	// Bounce is a negative signal for documents opened and quickly left.
	Bounce float64
}
