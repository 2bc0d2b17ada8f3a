// Package domain defines the core entities of the ranking engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document, DocumentInfo, Metadata: corpus snapshots
//   - ChangeEvent: corpus change notifications
//   - ChunkEmbedding, EmbeddingSnapshot, GraphSnapshot: derived index state
//   - RankedCandidate, FusedResult, SearchResult, Cluster: ranking pipeline values
//   - Settings: engine configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
