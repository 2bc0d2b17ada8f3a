package services

import (
	"crypto/sha256"
	"encoding/hex"
	"math"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// It returns 0 for vectors of different length, empty vectors and zero-norm
// vectors, so corrupted cache entries never surface as errors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// bestChunk returns the chunk most similar to query and its similarity.
// The index is -1 when there are no chunks.
func bestChunk(query []float32, chunks []domain.ChunkEmbedding) (int, float64) {
	best, bestSim := -1, math.Inf(-1)
	for i := range chunks {
		if sim := CosineSimilarity(query, chunks[i].Vector); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestSim
}

// maxPairSimilarity returns the highest cosine between any chunk of a and any chunk of b.
func maxPairSimilarity(a, b []domain.ChunkEmbedding) float64 {
	best := 0.0
	found := false
	for i := range a {
		for j := range b {
			sim := CosineSimilarity(a[i].Vector, b[j].Vector)
			if !found || sim > best {
				best, found = sim, true
			}
		}
	}
	return best
}

// contentHash returns the hex SHA-256 of a document's content.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
