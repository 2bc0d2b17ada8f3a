package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Adaptive concurrency thresholds on the latency moving average.
const (
	DefaultSlowLatency = 2 * time.Second
	DefaultFastLatency = 500 * time.Millisecond

	latencySmoothing = 0.2
	adjustEvery      = 4

	// submitRetry is how long Do waits for a free worker before trying again.
	submitRetry = 5 * time.Millisecond
)

// RequestQueueConfig configures a RequestQueue.
type RequestQueueConfig struct {
	// MaxConcurrency is the upper bound of in-flight provider requests.
	MaxConcurrency int

	// Adaptive shrinks concurrency when the provider slows down and grows it back.
	Adaptive bool

	// MaxAttempts is the number of tries per request before giving up.
	MaxAttempts int

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration

	SlowLatency time.Duration
	FastLatency time.Duration

	// Clock measures request latency. Nil uses the wall clock.
	Clock clock.Clock
}

// RequestQueueConfigFrom derives a queue configuration from embedding settings.
func RequestQueueConfigFrom(s domain.EmbeddingSettings) RequestQueueConfig {
	return RequestQueueConfig{
		MaxConcurrency: s.MaxConcurrency,
		Adaptive:       s.Adaptive,
		MaxAttempts:    s.MaxAttempts,
		InitialBackoff: s.InitialBackoff,
	}
}

// RequestQueue bounds and retries calls to an external provider.
// Requests run on an ants worker pool; failures are retried with exponential
// backoff. In adaptive mode the pool capacity follows observed latency.
type RequestQueue struct {
	cfg  RequestQueueConfig
	pool *ants.Pool

	mu           sync.Mutex
	ewma         time.Duration
	observations int
}

// NewRequestQueue creates a queue. Call Close to release its workers.
func NewRequestQueue(cfg RequestQueueConfig) (*RequestQueue, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.SlowLatency <= 0 {
		cfg.SlowLatency = DefaultSlowLatency
	}
	if cfg.FastLatency <= 0 {
		cfg.FastLatency = DefaultFastLatency
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	pool, err := ants.NewPool(cfg.MaxConcurrency, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create request worker pool: %w", err)
	}
	return &RequestQueue{cfg: cfg, pool: pool}, nil
}

// Do runs task on the pool and waits for it, retrying failures.
// It returns ctx.Err() if ctx ends first, including while waiting for a free
// worker. Validation errors (domain.ErrDimensionMismatch,
// domain.ErrInvalidInput) are returned after one attempt; other failures wrap
// domain.ErrProviderFailed once the attempts are exhausted.
func (q *RequestQueue) Do(ctx context.Context, task func(context.Context) error) error {
	done := make(chan error, 1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := q.pool.Submit(func() {
			done <- q.run(ctx, task)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("submit request: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(submitRetry):
		}
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *RequestQueue) run(ctx context.Context, task func(context.Context) error) error {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		start := q.cfg.Clock.Now()
		err := task(ctx)
		q.observe(q.cfg.Clock.Now().Sub(start))

		switch {
		case err == nil:
			return struct{}{}, nil
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(ctx.Err())
		case isValidationError(err):
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.InitialBackoff

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(q.cfg.MaxAttempts)),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || isValidationError(err) {
		return err
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrProviderFailed, attempts, err)
}

// isValidationError reports errors that a retry cannot fix.
func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) || errors.Is(err, domain.ErrInvalidInput)
}

// observe feeds one latency sample into the moving average and, in adaptive
// mode, tunes the pool capacity every few samples.
func (q *RequestQueue) observe(latency time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.observations == 0 {
		q.ewma = latency
	} else {
		q.ewma = time.Duration(latencySmoothing*float64(latency) + (1-latencySmoothing)*float64(q.ewma))
	}
	q.observations++

	if !q.cfg.Adaptive || q.observations%adjustEvery != 0 {
		return
	}

	capacity := q.pool.Cap()
	switch {
	case q.ewma > q.cfg.SlowLatency && capacity > 1:
		q.pool.Tune(capacity - 1)
		logger.Debug("request queue: latency %s, concurrency %d -> %d", q.ewma, capacity, capacity-1)
	case q.ewma < q.cfg.FastLatency && capacity < q.cfg.MaxConcurrency:
		q.pool.Tune(capacity + 1)
		logger.Debug("request queue: latency %s, concurrency %d -> %d", q.ewma, capacity, capacity+1)
	}
}

// Concurrency returns the current pool capacity.
func (q *RequestQueue) Concurrency() int {
	return q.pool.Cap()
}

// Latency returns the latency moving average.
func (q *RequestQueue) Latency() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ewma
}

// Close releases the worker pool.
func (q *RequestQueue) Close() {
	q.pool.Release()
}
