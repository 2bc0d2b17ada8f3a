package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

func newTestService(t *testing.T, cfg Config, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "sk-test"
	}
	svc, err := NewEmbeddingService(cfg)
	require.NoError(t, err)
	return svc
}

func writeEmbeddings(t *testing.T, w http.ResponseWriter, vectors ...[]float64) {
	t.Helper()
	var resp embeddingResponse
	// Reverse order to exercise index-based placement.
	for i := len(vectors) - 1; i >= 0; i-- {
		resp.Data = append(resp.Data, struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: vectors[i], Index: i})
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestNewEmbeddingService_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.Error(t, err)
}

func TestNewEmbeddingService_Dimensions(t *testing.T) {
	tests := []struct {
		model string
		dims  int
		want  int
	}{
		{"", 0, 1536},
		{"text-embedding-3-large", 0, 3072},
		{"text-embedding-3-large", 256, 256},
		{"custom-model", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			svc, err := NewEmbeddingService(Config{APIKey: "sk", Model: tt.model, Dimensions: tt.dims})
			require.NoError(t, err)
			assert.Equal(t, tt.want, svc.Dimensions())
		})
	}
}

func TestEmbeddingService_EmbedBatch(t *testing.T) {
	var got embeddingRequest
	svc := newTestService(t, Config{Dimensions: 2}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEmbeddings(t, w, []float64{1, 0}, []float64{0, 1})
	})

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Input)
	assert.Equal(t, 2, got.Dimensions)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbeddingService_Embed(t *testing.T) {
	svc := newTestService(t, Config{Dimensions: 3}, func(w http.ResponseWriter, _ *http.Request) {
		writeEmbeddings(t, w, []float64{0.5, 0.25, 0})
	})

	vector, err := svc.Embed(context.Background(), "a")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0}, vector)
}

func TestEmbeddingService_ReturnsVectorsOfAnyLength(t *testing.T) {
	svc := newTestService(t, Config{Dimensions: 3}, func(w http.ResponseWriter, _ *http.Request) {
		writeEmbeddings(t, w, []float64{1, 0, 0}, []float64{1, 2})
	})

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err, "a short vector is the index's to drop, not a request failure")
	assert.Equal(t, [][]float32{{1, 0, 0}, {1, 2}}, vectors)
}

func TestEmbeddingService_APIError(t *testing.T) {
	svc := newTestService(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	})

	_, err := svc.Embed(context.Background(), "a")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestEmbeddingService_RateLimitedPausesRequests(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, Config{}, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := svc.Embed(context.Background(), "a")
	require.ErrorIs(t, err, domain.ErrRateLimited)

	// The next request waits out Retry-After and gives up with the context.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.Embed(ctx, "a")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbeddingService_Ping(t *testing.T) {
	svc := newTestService(t, Config{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, svc.Ping(context.Background()))
}

func TestRateLimiter_Backoff(t *testing.T) {
	rl := newRateLimiter(0, 0)

	rl.Backoff("not-a-number")
	assert.WithinDuration(t, time.Now().Add(defaultRetryAfter), rl.retryAt, time.Second)

	rl.Backoff("1")
	assert.WithinDuration(t, time.Now().Add(defaultRetryAfter), rl.retryAt, time.Second, "shorter hints never shorten the pause")
}
