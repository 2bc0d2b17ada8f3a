package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure LiveIndexer implements the interface.
var _ driving.IndexService = (*LiveIndexer)(nil)

// DefaultIndexParallelism bounds concurrent document indexing.
const DefaultIndexParallelism = 4

// ErrAlreadyRunning is returned by Start on a running indexer.
var ErrAlreadyRunning = errors.New("indexer already running")

// cacheInvalidator drops cached search responses.
type cacheInvalidator interface {
	InvalidateCache()
}

// usageRenamer moves the access history of a renamed document.
type usageRenamer interface {
	Rename(ctx context.Context, oldID, newID string) error
}

// LiveIndexerDeps are the collaborators of a LiveIndexer.
// Engine, Embeddings, GraphStore, Cache and Usage are optional.
type LiveIndexerDeps struct {
	Corpus     driven.Corpus
	Engine     driven.SearchEngine
	Embeddings *EmbeddingIndex
	Graph      *DocumentGraph
	Segmenter  *QuerySegmenter
	GraphStore driven.GraphStore
	Cache      cacheInvalidator
	Usage      usageRenamer
	Clock      clock.Clock

	// Parallelism bounds concurrent document indexing.
	Parallelism int
}

// LiveIndexer builds the derived indexes and keeps them current.
//
// Graph and lexicon edits are applied as events arrive; PageRank is
// recomputed by the graph's own scheduler. Keyword and embedding reindexing
// of changed documents is coalesced through an UpdateScheduler.
type LiveIndexer struct {
	deps     LiveIndexerDeps
	schedule domain.SchedulerSettings

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	workCtx     context.Context
	reindex     *UpdateScheduler[string]
	lastRebuild time.Time
}

// NewLiveIndexer creates an indexer.
func NewLiveIndexer(deps LiveIndexerDeps, schedule domain.SchedulerSettings) *LiveIndexer {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Segmenter == nil {
		deps.Segmenter = NewQuerySegmenter()
	}
	if deps.Parallelism <= 0 {
		deps.Parallelism = DefaultIndexParallelism
	}
	return &LiveIndexer{deps: deps, schedule: schedule}
}

func (li *LiveIndexer) embeddingsOn() bool {
	return li.deps.Embeddings != nil && li.deps.Embeddings.Available()
}

// Rebuild indexes the whole corpus. Valid persisted graph scores and
// embeddings are reused. Per-document provider failures are counted, not
// returned; only cancellation and corpus errors abort the rebuild.
func (li *LiveIndexer) Rebuild(ctx context.Context) (*domain.IndexStats, error) {
	logger.Section("Index Rebuild")
	stats := &domain.IndexStats{StartedAt: li.deps.Clock.Now()}

	infos, err := li.deps.Corpus.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list corpus: %w", err)
	}
	stats.Documents = len(infos)
	logger.Debug("Corpus: %d documents", len(infos))

	li.deps.Graph.Build(infos)
	li.deps.Segmenter.BuildLexicon(infos)
	stats.Links = li.deps.Graph.EdgeCount()
	stats.Phrases = li.deps.Segmenter.Len()

	li.restoreOrComputeGraph(ctx, infos, stats)

	if li.embeddingsOn() {
		if n, err := li.deps.Embeddings.Load(ctx); err != nil {
			logger.Warn("Embedding snapshot not used: %v", err)
		} else {
			logger.Debug("Restored embeddings for %d documents", n)
		}
		live := make(map[string]struct{}, len(infos))
		for i := range infos {
			live[infos[i].ID] = struct{}{}
		}
		if pruned := li.deps.Embeddings.Prune(live); pruned > 0 {
			logger.Debug("Pruned embeddings of %d removed documents", pruned)
		}
	}

	var statsMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(li.deps.Parallelism)
	for i := range infos {
		id := infos[i].ID
		g.Go(func() error {
			outcome, err := li.indexDocument(gctx, id)
			if err != nil {
				return err
			}
			statsMu.Lock()
			outcome.addTo(stats)
			statsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if li.embeddingsOn() {
		stats.DroppedVectors = li.deps.Embeddings.DroppedVectors()
		if err := li.deps.Embeddings.Persist(ctx); err != nil {
			logger.Warn("Failed to persist embeddings: %v", err)
		}
	}
	li.invalidate()

	stats.EndedAt = li.deps.Clock.Now()
	li.mu.Lock()
	li.lastRebuild = stats.EndedAt
	li.mu.Unlock()

	logger.Info("Indexed %d documents (%d embedded, %d reused, %d failed) in %s",
		stats.Documents, stats.EmbeddedDocuments, stats.ReusedEmbeddings, stats.EmbeddingFailures, stats.Duration())
	return stats, nil
}

// restoreOrComputeGraph publishes persisted scores when they still cover the
// corpus exactly, else recomputes and persists them.
func (li *LiveIndexer) restoreOrComputeGraph(ctx context.Context, infos []domain.DocumentInfo, stats *domain.IndexStats) {
	if li.deps.GraphStore != nil {
		snap, err := li.deps.GraphStore.Load(ctx)
		switch {
		case err == nil && snap.IsValidFor(infos):
			if err := li.deps.Graph.Restore(snap); err == nil {
				stats.GraphRestored = true
				logger.Debug("Restored importance scores from snapshot")
				return
			}
		case err == nil:
			logger.Debug("Graph snapshot is stale, recomputing")
		case !errors.Is(err, domain.ErrNotFound):
			logger.Warn("Failed to load graph snapshot: %v", err)
		}
	}

	res := li.deps.Graph.ComputePageRank()
	stats.PageRankIterations = res.Iterations
	stats.Converged = res.Converged
	li.persistGraph(ctx)
}

func (li *LiveIndexer) persistGraph(ctx context.Context) {
	if li.deps.GraphStore == nil {
		return
	}
	if err := li.deps.GraphStore.Save(ctx, li.deps.Graph.Snapshot()); err != nil {
		logger.Warn("Failed to persist graph snapshot: %v", err)
	}
}

// HandleRecompute is the graph's recompute hook: it persists the new scores
// and drops cached responses ranked with the old ones.
func (li *LiveIndexer) HandleRecompute(res domain.PageRankResult) {
	logger.Debug("Importance recomputed in %d iterations", res.Iterations)
	li.persistGraph(context.Background())
	li.invalidate()
}

func (li *LiveIndexer) invalidate() {
	if li.deps.Cache != nil {
		li.deps.Cache.InvalidateCache()
	}
}

// indexOutcome is what indexing one document did.
type indexOutcome struct {
	embedded bool
	reused   bool
	failed   bool
}

func (o indexOutcome) addTo(s *domain.IndexStats) {
	if o.embedded {
		s.EmbeddedDocuments++
	}
	if o.reused {
		s.ReusedEmbeddings++
	}
	if o.failed {
		s.EmbeddingFailures++
	}
}

// indexDocument feeds one document to the keyword engine and the embedding
// index. A document that no longer exists is removed from both. Only
// cancellation is returned as an error.
func (li *LiveIndexer) indexDocument(ctx context.Context, id string) (indexOutcome, error) {
	var out indexOutcome

	doc, err := li.deps.Corpus.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		li.removeDocument(ctx, id)
		return out, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		logger.Warn("Failed to read %s: %v", id, err)
		return out, nil
	}

	if li.deps.Engine != nil {
		if err := li.deps.Engine.Index(ctx, *doc); err != nil {
			logger.Warn("Keyword index failed for %s: %v", id, err)
		}
	}

	if li.embeddingsOn() {
		res, err := li.deps.Embeddings.IndexDocument(ctx, doc)
		switch {
		case err != nil && ctx.Err() != nil:
			return out, ctx.Err()
		case err != nil:
			logger.Warn("Embedding failed for %s: %v", id, err)
			out.failed = true
		default:
			out.embedded = res.Chunks > 0
			out.reused = res.Reused
		}
	}
	return out, nil
}

func (li *LiveIndexer) removeDocument(ctx context.Context, id string) {
	if li.deps.Engine != nil {
		if err := li.deps.Engine.Delete(ctx, id); err != nil {
			logger.Warn("Keyword delete failed for %s: %v", id, err)
		}
	}
	if li.deps.Embeddings != nil {
		li.deps.Embeddings.Remove(id)
	}
}

// Start subscribes to corpus changes and processes them until ctx ends or
// Stop is called.
func (li *LiveIndexer) Start(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()
	if li.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, err := li.deps.Corpus.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to corpus: %w", err)
	}

	li.workCtx = context.WithoutCancel(ctx)
	li.reindex = NewUpdateScheduler(
		"reindex", li.deps.Clock, li.schedule.Throttle, li.schedule.Debounce, li.flushReindex,
	)
	li.cancel = cancel
	li.done = make(chan struct{})
	li.running = true

	go li.loop(runCtx, events, li.done)
	logger.Debug("Live indexing started")
	return nil
}

func (li *LiveIndexer) loop(ctx context.Context, events <-chan domain.ChangeEvent, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := li.HandleEvent(ctx, ev); err != nil {
				logger.Warn("Change %s %s not applied: %v", ev.Type, ev.DocumentID, err)
			}
		}
	}
}

// HandleEvent applies one change: graph and lexicon immediately, deletions
// from the keyword and embedding indexes immediately, and content
// reindexing through the scheduler.
func (li *LiveIndexer) HandleEvent(ctx context.Context, ev domain.ChangeEvent) error {
	logger.Debug("Change: %s %s", ev.Type, ev.DocumentID)
	defer li.invalidate()

	switch ev.Type {
	case domain.ChangeDeleted:
		if err := li.deps.Graph.Apply(ev, nil); err != nil {
			return err
		}
		li.deps.Segmenter.RemoveDocument(ev.DocumentID)
		li.removeDocument(ctx, ev.DocumentID)
		return nil

	case domain.ChangeCreated, domain.ChangeModified, domain.ChangeRenamed:
		doc, err := li.deps.Corpus.Get(ctx, ev.DocumentID)
		if errors.Is(err, domain.ErrNotFound) {
			// Gone again before we saw it.
			return li.HandleEvent(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, DocumentID: ev.DocumentID})
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", ev.DocumentID, err)
		}
		if err := li.deps.Graph.Apply(ev, &doc.DocumentInfo); err != nil {
			return err
		}
		if ev.Type == domain.ChangeRenamed && ev.OldID != "" {
			li.deps.Segmenter.RemoveDocument(ev.OldID)
			if li.deps.Embeddings != nil {
				li.deps.Embeddings.Rename(ev.OldID, ev.DocumentID)
			}
			if li.deps.Engine != nil {
				if err := li.deps.Engine.Delete(ctx, ev.OldID); err != nil {
					logger.Warn("Keyword delete failed for %s: %v", ev.OldID, err)
				}
			}
			if li.deps.Usage != nil {
				if err := li.deps.Usage.Rename(ctx, ev.OldID, ev.DocumentID); err != nil {
					logger.Warn("Usage history of %s not moved: %v", ev.OldID, err)
				}
			}
		}
		li.deps.Segmenter.AddDocument(doc.DocumentInfo)
		li.scheduleReindex(ev.DocumentID)
		return nil

	default:
		return fmt.Errorf("change type %d: %w", ev.Type, domain.ErrInvalidInput)
	}
}

func (li *LiveIndexer) scheduleReindex(id string) {
	li.mu.Lock()
	s := li.reindex
	li.mu.Unlock()
	if s == nil {
		// Not started: index inline.
		if _, err := li.indexDocument(context.Background(), id); err != nil {
			logger.Warn("Reindex of %s failed: %v", id, err)
		}
		return
	}
	s.Schedule(id)
}

// flushReindex reindexes a batch of changed documents and persists the
// embedding snapshot.
func (li *LiveIndexer) flushReindex(ids []string) error {
	li.mu.Lock()
	ctx := li.workCtx
	li.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Debug("Reindexing %d documents", len(ids))

	var errs error
	var errsMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(li.deps.Parallelism)
	for _, id := range ids {
		g.Go(func() error {
			out, err := li.indexDocument(ctx, id)
			if err == nil && out.failed {
				err = fmt.Errorf("embed %s: %w", id, domain.ErrProviderFailed)
			}
			if err != nil {
				errsMu.Lock()
				errs = multierr.Append(errs, err)
				errsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if li.embeddingsOn() {
		if err := li.deps.Embeddings.Persist(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	li.invalidate()
	return errs
}

// Stop stops consuming events, runs the pending reindex and recomputation,
// and releases the schedulers.
func (li *LiveIndexer) Stop() error {
	li.mu.Lock()
	if !li.running {
		li.mu.Unlock()
		return nil
	}
	cancel, done, reindex := li.cancel, li.done, li.reindex
	li.running = false
	li.mu.Unlock()

	cancel()
	<-done

	reindex.Flush()
	reindex.Destroy()
	li.deps.Graph.FlushPending()

	li.mu.Lock()
	li.reindex = nil
	li.mu.Unlock()

	logger.Debug("Live indexing stopped")
	return nil
}

// Status reports the indexer state.
func (li *LiveIndexer) Status() domain.IndexStatus {
	li.mu.Lock()
	st := domain.IndexStatus{Running: li.running, LastRebuild: li.lastRebuild}
	if li.reindex != nil {
		st.PendingReindex = li.reindex.Pending()
	}
	li.mu.Unlock()

	st.Documents = li.deps.Graph.Len()
	st.PendingGraph = li.deps.Graph.Dirty()
	st.LastPageRank = li.deps.Graph.ComputedAt()
	if li.deps.Embeddings != nil {
		st.EmbeddedDocuments = li.deps.Embeddings.Len()
		st.Dimension = li.deps.Embeddings.Dimension()
	}
	return st
}
