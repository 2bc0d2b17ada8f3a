package domain

import "time"

// IndexStats is the outcome of a full index rebuild.
type IndexStats struct {
	// StartedAt is when the rebuild started.
	StartedAt time.Time

	// EndedAt is when the rebuild completed.
	EndedAt time.Time

	// Documents is the number of live documents.
	Documents int

	// Links is the number of resolved graph edges.
	Links int

	// EmbeddedDocuments counts documents with at least one stored vector.
	EmbeddedDocuments int

	// ReusedEmbeddings counts documents whose cached vectors were still valid.
	ReusedEmbeddings int

	// DroppedVectors counts vectors rejected for a dimension mismatch.
	DroppedVectors int

	// EmbeddingFailures counts documents whose embedding requests failed.
	EmbeddingFailures int

	// PageRankIterations is the number of power iterations run.
	PageRankIterations int

	// Converged is true when PageRank stopped below the threshold.
	Converged bool

	// GraphRestored is true when a valid graph snapshot replaced recomputation.
	GraphRestored bool

	// Phrases is the size of the query segmentation lexicon.
	Phrases int
}

// Duration returns how long the rebuild took.
func (s IndexStats) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// IndexStatus describes the live indexer.
type IndexStatus struct {
	// Running is true while change events are being consumed.
	Running bool

	// Documents is the number of graph nodes.
	Documents int

	// EmbeddedDocuments is the number of documents in the embedding index.
	EmbeddedDocuments int

	// Dimension is the session embedding dimension, 0 until fixed.
	Dimension int

	// PendingReindex is the number of documents waiting for reindexing.
	PendingReindex int

	// PendingGraph is true when graph edits await a PageRank recomputation.
	PendingGraph bool

	// LastRebuild is when the last full rebuild completed.
	LastRebuild time.Time

	// LastPageRank is when scores were last published.
	LastPageRank time.Time
}

// ImportanceScore is the link-graph importance of one document.
type ImportanceScore struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Raw        float64 `json:"raw"`
	InLinks    int     `json:"in_links"`
	OutLinks   int     `json:"out_links"`
}

// PageRankResult reports how a PageRank computation ended.
type PageRankResult struct {
	Iterations int
	Converged  bool

	// Delta is the maximum per-node change in the final iteration.
	Delta float64
}
