package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/logger"
	"github.com/custodia-labs/sercha-rank/internal/postprocessors/chunker"
)

// queryCheckEvery is how many documents a similarity scan visits between
// cancellation checks.
const queryCheckEvery = 128

// IndexResult describes what IndexDocument did.
type IndexResult struct {
	// Reused is true when the cached entry was still valid.
	Reused bool

	// Chunks is the number of stored chunk vectors.
	Chunks int

	// Dropped is the number of vectors rejected for their dimension.
	Dropped int
}

// EmbeddingIndex stores per-chunk vectors for every document and answers
// nearest-chunk similarity queries.
//
// All vectors share one dimension, fixed by the first vector accepted in the
// session. Entries are replaced wholesale and never mutated in place, so
// readers may hold them without copying.
type EmbeddingIndex struct {
	embedder driven.EmbeddingService
	pipeline driven.PostProcessorPipeline
	queue    *RequestQueue
	store    driven.EmbeddingStore

	mu        sync.RWMutex
	entries   map[string]domain.EmbeddingEntry
	dimension int

	dropped atomic.Int64
}

// NewEmbeddingIndex creates an index. embedder may be nil, which disables
// semantic retrieval. queue and store are optional.
func NewEmbeddingIndex(
	embedder driven.EmbeddingService,
	pipeline driven.PostProcessorPipeline,
	queue *RequestQueue,
	store driven.EmbeddingStore,
) *EmbeddingIndex {
	return &EmbeddingIndex{
		embedder: embedder,
		pipeline: pipeline,
		queue:    queue,
		store:    store,
		entries:  make(map[string]domain.EmbeddingEntry),
	}
}

// Available reports whether an embedding provider is configured.
func (e *EmbeddingIndex) Available() bool {
	return e.embedder != nil
}

// ModelName returns the provider's model, empty without a provider.
func (e *EmbeddingIndex) ModelName() string {
	if e.embedder == nil {
		return ""
	}
	return e.embedder.ModelName()
}

// IndexDocument chunks and embeds a document unless its cached entry is
// still valid. Vectors of the wrong dimension are dropped without failing the
// document. On cancellation nothing is stored.
func (e *EmbeddingIndex) IndexDocument(ctx context.Context, doc *domain.Document) (IndexResult, error) {
	if e.embedder == nil {
		return IndexResult{}, domain.ErrEmbeddingUnavailable
	}

	hash := contentHash(doc.Content)
	e.mu.RLock()
	entry, ok := e.entries[doc.ID]
	e.mu.RUnlock()
	if ok && entry.IsValidFor(doc.ModifiedAt, hash) {
		return IndexResult{Reused: true, Chunks: len(entry.Chunks)}, nil
	}

	chunks, err := e.pipeline.Process(ctx, doc)
	if err != nil {
		return IndexResult{}, fmt.Errorf("chunk %s: %w", doc.ID, err)
	}
	if len(chunks) == 0 {
		e.Remove(doc.ID)
		return IndexResult{}, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			vec, err := e.embed(gctx, chunks[i].Content)
			if errors.Is(err, domain.ErrDimensionMismatch) {
				// Left nil, the vector is counted as dropped below.
				return nil
			}
			if err != nil {
				return err
			}
			vectors[i] = vec
			return nil
		})
	}
	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return IndexResult{}, ctxErr
	}
	if err != nil {
		// The previous entry no longer matches the document.
		e.Remove(doc.ID)
		return IndexResult{}, fmt.Errorf("embed %s: %w", doc.ID, err)
	}

	var res IndexResult
	kept := make([]domain.ChunkEmbedding, 0, len(chunks))
	for i := range chunks {
		if err := e.acceptDimension(vectors[i]); err != nil {
			res.Dropped++
			e.dropped.Add(1)
			logger.Warn("embedding: dropped chunk %d of %s: %v", chunks[i].Position, doc.ID, err)
			continue
		}
		kept = append(kept, domain.ChunkEmbedding{
			Vector:   vectors[i],
			Text:     chunkText(chunks[i]),
			Position: chunks[i].Position,
		})
	}

	if len(kept) == 0 {
		e.Remove(doc.ID)
		return res, nil
	}
	res.Chunks = len(kept)

	e.mu.Lock()
	e.entries[doc.ID] = domain.EmbeddingEntry{
		ContentHash: hash,
		ModifiedAt:  doc.ModifiedAt,
		Chunks:      kept,
	}
	e.mu.Unlock()

	return res, nil
}

// embed requests one vector through the request queue when there is one.
func (e *EmbeddingIndex) embed(ctx context.Context, text string) ([]float32, error) {
	if e.queue == nil {
		return e.embedder.Embed(ctx, text)
	}
	result := make(chan []float32, 1)
	err := e.queue.Do(ctx, func(ctx context.Context) error {
		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		result <- vec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-result, nil
}

// acceptDimension checks a vector against the session dimension, fixing it
// on the first accepted vector.
func (e *EmbeddingIndex) acceptDimension(vec []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(vec) == 0 {
		return fmt.Errorf("empty vector: %w", domain.ErrDimensionMismatch)
	}
	if e.dimension == 0 {
		e.dimension = len(vec)
		logger.Debug("embedding: session dimension fixed at %d", e.dimension)
		return nil
	}
	if len(vec) != e.dimension {
		return fmt.Errorf("got %d, want %d: %w", len(vec), e.dimension, domain.ErrDimensionMismatch)
	}
	return nil
}

// chunkText returns the chunk text without any context prefix.
func chunkText(c domain.Chunk) string {
	if text, ok := c.Metadata[chunker.TextKey].(string); ok {
		return text
	}
	return c.Content
}

// Query ranks documents by their best chunk's cosine similarity to vector.
// The best chunk's text is returned as the excerpt.
func (e *EmbeddingIndex) Query(ctx context.Context, vector []float32, limit int) ([]domain.RankedCandidate, error) {
	e.mu.RLock()
	candidates := make([]domain.RankedCandidate, 0, len(e.entries))
	visited := 0
	for id, entry := range e.entries {
		visited++
		if visited%queryCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				e.mu.RUnlock()
				return nil, err
			}
		}
		idx, sim := bestChunk(vector, entry.Chunks)
		if idx < 0 {
			continue
		}
		candidates = append(candidates, domain.RankedCandidate{
			DocumentID: id,
			Score:      sim,
			Excerpt:    entry.Chunks[idx].Text,
		})
	}
	e.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// Search embeds text and runs Query.
func (e *EmbeddingIndex) Search(ctx context.Context, text string, limit int) ([]domain.RankedCandidate, error) {
	if e.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if dim := e.Dimension(); dim != 0 && len(vec) != dim {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w",
			len(vec), dim, domain.ErrDimensionMismatch)
	}
	return e.Query(ctx, vec, limit)
}

// Chunks returns the stored chunk vectors of a document.
func (e *EmbeddingIndex) Chunks(id string) []domain.ChunkEmbedding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entries[id].Chunks
}

// Similarity returns the maximum chunk-pair cosine between two documents.
// ok is false when either document has no vectors.
func (e *EmbeddingIndex) Similarity(a, b string) (sim float64, ok bool) {
	e.mu.RLock()
	ca, cb := e.entries[a].Chunks, e.entries[b].Chunks
	e.mu.RUnlock()
	if len(ca) == 0 || len(cb) == 0 {
		return 0, false
	}
	return maxPairSimilarity(ca, cb), true
}

// Has reports whether a document has stored vectors.
func (e *EmbeddingIndex) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.entries[id]
	return ok
}

// Remove deletes a document's vectors.
func (e *EmbeddingIndex) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.entries[id]
	delete(e.entries, id)
	return ok
}

// Rename moves vectors to a new document id. Content is unchanged by a
// rename, so the entry stays valid.
func (e *EmbeddingIndex) Rename(oldID, newID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[oldID]
	if !ok {
		return false
	}
	delete(e.entries, oldID)
	e.entries[newID] = entry
	return true
}

// Prune removes entries for documents not in live and returns how many went.
func (e *EmbeddingIndex) Prune(live map[string]struct{}) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id := range e.entries {
		if _, ok := live[id]; !ok {
			delete(e.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of indexed documents.
func (e *EmbeddingIndex) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// Dimension returns the session dimension, 0 until the first vector.
func (e *EmbeddingIndex) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimension
}

// DroppedVectors returns how many vectors were rejected this session.
func (e *EmbeddingIndex) DroppedVectors() int {
	return int(e.dropped.Load())
}

// Load restores the persisted snapshot. A snapshot with another version,
// model or no dimension is discarded entirely and domain.ErrSnapshotVersion
// is returned; the index is then empty and must be rebuilt.
func (e *EmbeddingIndex) Load(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	snap, err := e.store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load embedding snapshot: %w", err)
	}

	model := e.ModelName()
	if snap.Version != domain.EmbeddingSnapshotVersion || snap.Model != model || snap.Dimension <= 0 {
		logger.Warn("embedding: discarding snapshot v%d (model %q, dim %d), want v%d (model %q)",
			snap.Version, snap.Model, snap.Dimension, domain.EmbeddingSnapshotVersion, model)
		if clearErr := e.store.Clear(ctx); clearErr != nil {
			logger.Warn("embedding: failed to clear snapshot: %v", clearErr)
		}
		return 0, fmt.Errorf("embedding snapshot v%d for %q: %w", snap.Version, snap.Model, domain.ErrSnapshotVersion)
	}

	entries := make(map[string]domain.EmbeddingEntry, len(snap.Entries))
	for id, entry := range snap.Entries {
		valid := len(entry.Chunks) > 0
		for _, c := range entry.Chunks {
			if len(c.Vector) != snap.Dimension {
				valid = false
				break
			}
		}
		if !valid {
			logger.Warn("embedding: dropping corrupt snapshot entry %s", id)
			continue
		}
		entries[id] = entry
	}

	e.mu.Lock()
	e.entries = entries
	e.dimension = snap.Dimension
	e.mu.Unlock()

	logger.Debug("embedding: restored %d documents (dim %d)", len(entries), snap.Dimension)
	return len(entries), nil
}

// Persist saves the index as a single versioned snapshot.
func (e *EmbeddingIndex) Persist(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.mu.RLock()
	snap := &domain.EmbeddingSnapshot{
		Version:   domain.EmbeddingSnapshotVersion,
		Model:     e.ModelName(),
		Dimension: e.dimension,
		Entries:   make(map[string]domain.EmbeddingEntry, len(e.entries)),
	}
	for id, entry := range e.entries {
		snap.Entries[id] = entry
	}
	e.mu.RUnlock()

	if err := e.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save embedding snapshot: %w", err)
	}
	return nil
}

// Clear drops all vectors, resets the session dimension and clears the store.
func (e *EmbeddingIndex) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.entries = make(map[string]domain.EmbeddingEntry)
	e.dimension = 0
	e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	return e.store.Clear(ctx)
}
