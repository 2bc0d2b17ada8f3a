package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Semantic retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrSearchUnavailable indicates the keyword search engine is not configured.
	ErrSearchUnavailable = errors.New("search engine unavailable")

	// Provider Errors.

	// ErrProviderFailed indicates an external provider kept failing after retries.
	// The affected source is dropped and ranking degrades to the remaining ones.
	ErrProviderFailed = errors.New("provider failed")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// Validation Errors.

	// ErrDimensionMismatch indicates a vector does not match the session dimension.
	// Offending vectors are dropped, never stored.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSnapshotVersion indicates a persisted snapshot has an incompatible version,
	// model or dimension. The whole snapshot is discarded.
	ErrSnapshotVersion = errors.New("incompatible snapshot version")

	// Configuration Errors.

	// ErrInvalidFilter indicates a malformed query filter. The filter is ignored.
	ErrInvalidFilter = errors.New("invalid filter")
)
