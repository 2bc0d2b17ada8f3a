package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// fixedSimilarity implements similaritySource from a table of pairs.
type fixedSimilarity struct {
	embedded map[string]bool
	pairs    map[[2]string]float64
}

func (f *fixedSimilarity) Has(id string) bool {
	return f.embedded[id]
}

func (f *fixedSimilarity) Similarity(a, b string) (float64, bool) {
	if !f.embedded[a] || !f.embedded[b] {
		return 0, false
	}
	if sim, ok := f.pairs[[2]string{a, b}]; ok {
		return sim, true
	}
	return f.pairs[[2]string{b, a}], true
}

func scoredResults(ids ...string) []domain.SearchResult {
	out := make([]domain.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = domain.SearchResult{DocumentID: id, Score: 1 - float64(i)*0.1}
	}
	return out
}

func TestResultClusterer_MergesAboveThreshold(t *testing.T) {
	sim := &fixedSimilarity{
		embedded: map[string]bool{"a": true, "b": true},
		pairs:    map[[2]string]float64{{"a", "b"}: 0.9},
	}
	c := NewResultClusterer(sim, 0.85)

	clusters, err := c.Cluster(context.Background(), scoredResults("a", "b"))
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "a", clusters[0].Primary.DocumentID, "the higher scored result is primary")
	require.Len(t, clusters[0].Related, 1)
	assert.Equal(t, "b", clusters[0].Related[0].DocumentID)
}

func TestResultClusterer_KeepsDissimilarApart(t *testing.T) {
	sim := &fixedSimilarity{
		embedded: map[string]bool{"a": true, "b": true},
		pairs:    map[[2]string]float64{{"a", "b"}: 0.5},
	}
	clusters, err := NewResultClusterer(sim, 0.85).Cluster(context.Background(), scoredResults("a", "b"))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Empty(t, clusters[0].Related)
	assert.Empty(t, clusters[1].Related)
}

func TestResultClusterer_ComparesPrimariesOnly(t *testing.T) {
	sim := &fixedSimilarity{
		embedded: map[string]bool{"a": true, "b": true, "c": true},
		pairs: map[[2]string]float64{
			{"a", "b"}: 0.9,
			{"b", "c"}: 0.95,
			{"a", "c"}: 0.4,
		},
	}
	clusters, err := NewResultClusterer(sim, 0.85).Cluster(context.Background(), scoredResults("a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "c", clusters[1].Primary.DocumentID, "c resembles only a related member")
}

func TestResultClusterer_WithoutEmbeddingsIsSingleton(t *testing.T) {
	sim := &fixedSimilarity{
		embedded: map[string]bool{"a": true, "c": true},
		pairs:    map[[2]string]float64{{"a", "c"}: 0.99},
	}
	clusters, err := NewResultClusterer(sim, 0.85).Cluster(context.Background(), scoredResults("a", "b", "c"))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "b", clusters[1].Primary.DocumentID)
	assert.Equal(t, []domain.SearchResult{scoredResults("a", "b", "c")[2]}, clusters[0].Related)
}

func TestResultClusterer_DefaultThreshold(t *testing.T) {
	c := NewResultClusterer(&fixedSimilarity{}, 0)
	assert.Equal(t, domain.DefaultClusterThreshold, c.threshold)
}

func TestResultClusterer_WithEmbeddingIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestEmbeddingIndex(newMockEmbedder(), nil)
	_, err := idx.IndexDocument(ctx, testDoc("a.md", "", "alpha."))
	require.NoError(t, err)
	_, err = idx.IndexDocument(ctx, testDoc("b.md", "", "alpha. delta."))
	require.NoError(t, err)
	_, err = idx.IndexDocument(ctx, testDoc("c.md", "", "gamma."))
	require.NoError(t, err)

	clusters, err := NewResultClusterer(idx, 0.85).Cluster(ctx, scoredResults("a.md", "b.md", "c.md"))
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "b.md", clusters[0].Related[0].DocumentID)
}

func TestFlatten(t *testing.T) {
	clusters := []domain.Cluster{
		{Primary: domain.SearchResult{DocumentID: "a"}, Related: scoredResults("b")},
		{Primary: domain.SearchResult{DocumentID: "c"}},
	}

	plain := Flatten(clusters, false)
	require.Len(t, plain, 2)
	assert.Nil(t, plain[0].Related)

	withRelated := Flatten(clusters, true)
	require.Len(t, withRelated[0].Related, 1)
	assert.Equal(t, "b", withRelated[0].Related[0].DocumentID)
	assert.Nil(t, withRelated[1].Related)
}
