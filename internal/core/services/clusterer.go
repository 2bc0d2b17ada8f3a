package services

import (
	"context"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// similaritySource answers document-to-document similarity.
// ok is false when either document has no embeddings.
type similaritySource interface {
	Has(id string) bool
	Similarity(a, b string) (sim float64, ok bool)
}

// ResultClusterer merges near-duplicate results.
//
// It makes a single greedy pass over score-ordered results and compares each
// one with the primaries of the clusters formed so far, never with their
// related members. A result similar to a related member but not to its
// primary starts a new cluster.
type ResultClusterer struct {
	sim       similaritySource
	threshold float64
}

// NewResultClusterer creates a clusterer. A threshold outside (0,1] uses
// domain.DefaultClusterThreshold.
func NewResultClusterer(sim similaritySource, threshold float64) *ResultClusterer {
	if threshold <= 0 || threshold > 1 {
		threshold = domain.DefaultClusterThreshold
	}
	return &ResultClusterer{sim: sim, threshold: threshold}
}

// Cluster groups results, which must be ordered best first. Each cluster's
// primary is its highest scored member. Results without embeddings always
// form singleton clusters.
func (c *ResultClusterer) Cluster(ctx context.Context, results []domain.SearchResult) ([]domain.Cluster, error) {
	clusters := make([]domain.Cluster, 0, len(results))

	// candidates indexes the clusters whose primary has embeddings.
	var candidates []int

	for i := range results {
		if i%queryCheckEvery == queryCheckEvery-1 {
			if err := ctx.Err(); err != nil {
				return clusters, err
			}
		}
		r := results[i]

		if !c.sim.Has(r.DocumentID) {
			clusters = append(clusters, domain.Cluster{Primary: r})
			continue
		}

		joined := false
		for _, ci := range candidates {
			sim, ok := c.sim.Similarity(clusters[ci].Primary.DocumentID, r.DocumentID)
			if ok && sim >= c.threshold {
				clusters[ci].Related = append(clusters[ci].Related, r)
				joined = true
				break
			}
		}
		if !joined {
			candidates = append(candidates, len(clusters))
			clusters = append(clusters, domain.Cluster{Primary: r})
		}
	}
	return clusters, nil
}

// Flatten returns cluster primaries in order. With includeRelated the
// related members are attached to their primary.
func Flatten(clusters []domain.Cluster, includeRelated bool) []domain.SearchResult {
	out := make([]domain.SearchResult, len(clusters))
	for i, cl := range clusters {
		out[i] = cl.Primary
		if includeRelated && len(cl.Related) > 0 {
			out[i].Related = append([]domain.SearchResult(nil), cl.Related...)
		}
	}
	return out
}
