package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// countingInvalidator counts cache invalidations.
type countingInvalidator struct {
	n atomic.Int32
}

func (c *countingInvalidator) InvalidateCache() {
	c.n.Add(1)
}

type liveFixture struct {
	indexer    *LiveIndexer
	corpus     *mockCorpus
	engine     *mockSearchEngine
	embedder   *mockEmbeddingService
	embeddings *EmbeddingIndex
	embedStore *mockEmbeddingStore
	graph      *DocumentGraph
	graphStore *mockGraphStore
	segmenter  *QuerySegmenter
	cache      *countingInvalidator
	clock      *clock.Fake
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	f := &liveFixture{
		corpus:     newMockCorpus(searchDocs()...),
		engine:     newMockSearchEngine(),
		embedder:   newMockEmbedder(),
		embedStore: &mockEmbeddingStore{},
		graphStore: &mockGraphStore{},
		segmenter:  NewQuerySegmenter(),
		cache:      &countingInvalidator{},
	}
	f.embeddings = NewEmbeddingIndex(f.embedder, sentencePipeline(), nil, f.embedStore)
	f.graph, f.clock = newTestGraph(t)
	f.indexer = NewLiveIndexer(LiveIndexerDeps{
		Corpus:      f.corpus,
		Engine:      f.engine,
		Embeddings:  f.embeddings,
		Graph:       f.graph,
		Segmenter:   f.segmenter,
		GraphStore:  f.graphStore,
		Cache:       f.cache,
		Clock:       f.clock,
		Parallelism: 2,
	}, domain.SchedulerSettings{Throttle: time.Second, Debounce: 100 * time.Millisecond})
	return f
}

func (f *liveFixture) indexed(id string) bool {
	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()
	_, ok := f.engine.docs[id]
	return ok
}

// recordingRenamer records usage history moves.
type recordingRenamer struct {
	moves []string
}

func (r *recordingRenamer) Rename(_ context.Context, oldID, newID string) error {
	r.moves = append(r.moves, oldID+"->"+newID)
	return nil
}

// ==================== Rebuild Tests ====================

func TestLiveIndexer_Rebuild(t *testing.T) {
	f := newLiveFixture(t)

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, 4, stats.EmbeddedDocuments)
	assert.Equal(t, 0, stats.ReusedEmbeddings)
	assert.Equal(t, 0, stats.EmbeddingFailures)
	assert.False(t, stats.GraphRestored)
	assert.Positive(t, stats.PageRankIterations)
	assert.Equal(t, 2, stats.Phrases)

	for _, d := range searchDocs() {
		assert.True(t, f.indexed(d.ID), d.ID)
		assert.True(t, f.embeddings.Has(d.ID), d.ID)
	}
	require.NotNil(t, f.graphStore.snapshot)
	assert.Len(t, f.graphStore.snapshot.Entries, 4)
	require.NotNil(t, f.embedStore.snapshot)
	assert.Len(t, f.embedStore.snapshot.Entries, 4)
	assert.Positive(t, f.cache.n.Load())
	assert.Equal(t, stats.EndedAt, f.indexer.Status().LastRebuild)
}

func TestLiveIndexer_RebuildReusesSnapshots(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	calls := f.embedder.callCount()

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.GraphRestored)
	assert.Zero(t, stats.PageRankIterations)
	assert.Equal(t, 4, stats.ReusedEmbeddings)
	assert.Equal(t, calls, f.embedder.callCount())
	assert.InDelta(t, f.graphStore.snapshot.Entries["alpha.md"].Score, f.graph.Score("alpha.md"), 1e-12)
}

func TestLiveIndexer_RebuildRecomputesStaleGraph(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)

	changed := testDoc("delta.md", "Delta", "delta.")
	changed.ModifiedAt = testEpoch.Add(time.Hour)
	f.corpus.put(changed)

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.GraphRestored)
	assert.Equal(t, 3, stats.ReusedEmbeddings)
	assert.Equal(t, testEpoch.Add(time.Hour), f.graphStore.snapshot.Entries["delta.md"].ModifiedAt)
}

func TestLiveIndexer_RebuildPrunesRemovedDocuments(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)

	f.corpus.remove("delta.md")
	f.embeddings = NewEmbeddingIndex(f.embedder, sentencePipeline(), nil, f.embedStore)
	f.indexer.deps.Embeddings = f.embeddings

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.ReusedEmbeddings)
	assert.False(t, f.embeddings.Has("delta.md"))
	assert.Len(t, f.embedStore.snapshot.Entries, 3)
}

func TestLiveIndexer_RebuildCountsEmbeddingFailures(t *testing.T) {
	f := newLiveFixture(t)
	f.embedder.vectorOf = func(text string) ([]float32, error) {
		if strings.Contains(strings.ToLower(text), "delta") {
			return nil, errors.New("provider down")
		}
		return keywordVector(text), nil
	}

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingFailures)
	assert.Equal(t, 3, stats.EmbeddedDocuments)
	assert.True(t, f.indexed("delta.md"))
	assert.False(t, f.embeddings.Has("delta.md"))
}

func TestLiveIndexer_RebuildCancelled(t *testing.T) {
	f := newLiveFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.indexer.Rebuild(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.embeddings.Len())
	assert.True(t, f.indexer.Status().LastRebuild.IsZero())
}

func TestLiveIndexer_RebuildWithoutEmbeddings(t *testing.T) {
	f := newLiveFixture(t)
	f.indexer.deps.Embeddings = NewEmbeddingIndex(nil, sentencePipeline(), nil, nil)

	stats, err := f.indexer.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.EmbeddedDocuments)
	assert.True(t, f.indexed("gamma.md"))
}

// ==================== Change Event Tests ====================

func TestLiveIndexer_HandleCreated(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)
	before := f.cache.n.Load()

	doc := testDoc("beta.md", "Beta Notes", "beta. alpha.")
	doc.Metadata.Links = []domain.Link{{Target: "alpha"}}
	f.corpus.put(doc)

	require.NoError(t, f.indexer.HandleEvent(ctx, domain.ChangeEvent{Type: domain.ChangeCreated, DocumentID: "beta.md"}))

	assert.Equal(t, 5, f.graph.Len())
	assert.True(t, f.graph.Dirty())
	assert.True(t, f.segmenter.HasPhrase("beta notes"))
	// Not started: content is indexed inline.
	assert.True(t, f.indexed("beta.md"))
	assert.True(t, f.embeddings.Has("beta.md"))
	assert.Greater(t, f.cache.n.Load(), before)

	f.clock.Advance(200 * time.Millisecond)
	assert.False(t, f.graph.Dirty())
}

func TestLiveIndexer_HandleDeleted(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)

	f.corpus.remove("alpha.md")
	require.NoError(t, f.indexer.HandleEvent(ctx, domain.ChangeEvent{Type: domain.ChangeDeleted, DocumentID: "alpha.md"}))

	assert.Equal(t, 3, f.graph.Len())
	assert.False(t, f.indexed("alpha.md"))
	assert.False(t, f.embeddings.Has("alpha.md"))
	assert.False(t, f.segmenter.HasPhrase("alpha guide"))
	require.NoError(t, f.graph.Validate())
}

func TestLiveIndexer_HandleModifiedVanished(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)

	f.corpus.remove("delta.md")
	require.NoError(t, f.indexer.HandleEvent(ctx, domain.ChangeEvent{Type: domain.ChangeModified, DocumentID: "delta.md"}))
	assert.Equal(t, 3, f.graph.Len())
	assert.False(t, f.indexed("delta.md"))
}

func TestLiveIndexer_HandleRenamed(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)
	calls := f.embedder.callCount()

	moved := testDoc("archive/alpha.md", "Alpha Guide", "alpha alpha. beta.", "research")
	f.corpus.remove("alpha.md")
	f.corpus.put(moved)

	renames := &recordingRenamer{}
	f.indexer.deps.Usage = renames

	require.NoError(t, f.indexer.HandleEvent(ctx, domain.ChangeEvent{
		Type: domain.ChangeRenamed, DocumentID: "archive/alpha.md", OldID: "alpha.md",
	}))
	assert.Equal(t, []string{"alpha.md->archive/alpha.md"}, renames.moves)

	assert.Equal(t, 4, f.graph.Len())
	assert.False(t, f.indexed("alpha.md"))
	assert.True(t, f.indexed("archive/alpha.md"))
	assert.False(t, f.embeddings.Has("alpha.md"))
	assert.True(t, f.embeddings.Has("archive/alpha.md"))
	// Unchanged content keeps its vectors.
	assert.Equal(t, calls, f.embedder.callCount())
	assert.True(t, f.segmenter.HasPhrase("alpha guide"))
	require.NoError(t, f.graph.Validate())
}

func TestLiveIndexer_HandleUnknownType(t *testing.T) {
	f := newLiveFixture(t)
	err := f.indexer.HandleEvent(context.Background(), domain.ChangeEvent{Type: domain.ChangeType(42), DocumentID: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ==================== Start/Stop Tests ====================

func TestLiveIndexer_StartStop(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)

	require.NoError(t, f.indexer.Start(ctx))
	require.ErrorIs(t, f.indexer.Start(ctx), ErrAlreadyRunning)
	assert.True(t, f.indexer.Status().Running)

	f.corpus.put(testDoc("beta.md", "Beta", "beta."))
	f.corpus.events <- domain.ChangeEvent{Type: domain.ChangeCreated, DocumentID: "beta.md"}

	require.Eventually(t, func() bool {
		return f.indexer.Status().PendingReindex == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.indexed("beta.md"))

	require.NoError(t, f.indexer.Stop())

	st := f.indexer.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.PendingReindex)
	assert.False(t, st.PendingGraph)
	assert.Equal(t, 5, st.Documents)
	assert.True(t, f.indexed("beta.md"))
	assert.True(t, f.embeddings.Has("beta.md"))
	assert.Len(t, f.embedStore.snapshot.Entries, 5)

	// Stopping twice is harmless.
	require.NoError(t, f.indexer.Stop())
}

func TestLiveIndexer_ScheduledReindexCoalesces(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()
	_, err := f.indexer.Rebuild(ctx)
	require.NoError(t, err)
	require.NoError(t, f.indexer.Start(ctx))
	defer func() { _ = f.indexer.Stop() }()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.indexer.HandleEvent(ctx, domain.ChangeEvent{Type: domain.ChangeModified, DocumentID: "delta.md"}))
	}
	assert.Equal(t, 1, f.indexer.Status().PendingReindex)

	f.clock.Advance(150 * time.Millisecond)
	assert.Zero(t, f.indexer.Status().PendingReindex)
}

func TestLiveIndexer_StartSubscribeError(t *testing.T) {
	f := newLiveFixture(t)
	f.indexer.deps.Corpus = failingCorpus{f.corpus}
	require.Error(t, f.indexer.Start(context.Background()))
	assert.False(t, f.indexer.Status().Running)
}

// failingCorpus refuses subscriptions.
type failingCorpus struct {
	*mockCorpus
}

func (failingCorpus) Subscribe(context.Context) (<-chan domain.ChangeEvent, error) {
	return nil, errors.New("watch failed")
}

// ==================== Recompute Hook Tests ====================

func TestLiveIndexer_HandleRecompute(t *testing.T) {
	f := newLiveFixture(t)
	f.graph.Build([]domain.DocumentInfo{docInfo("a", "b"), docInfo("b")})
	res := f.graph.ComputePageRank()

	f.indexer.HandleRecompute(res)

	require.NotNil(t, f.graphStore.snapshot)
	assert.Len(t, f.graphStore.snapshot.Entries, 2)
	assert.Equal(t, int32(1), f.cache.n.Load())
}

func TestLiveIndexer_StatusBeforeRebuild(t *testing.T) {
	f := newLiveFixture(t)
	st := f.indexer.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.Documents)
	assert.Zero(t, st.Dimension)
	assert.True(t, st.LastRebuild.IsZero())
}
