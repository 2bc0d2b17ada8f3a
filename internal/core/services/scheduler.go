package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// FlushFunc receives the keys coalesced since the previous flush, in the order
// they were first scheduled.
type FlushFunc[K comparable] func(keys []K) error

// UpdateScheduler coalesces bursts of change notifications into batched flushes.
//
// A throttle timer, armed by the first pending key, flushes at least every
// throttle interval while keys keep arriving. A debounce timer, re-armed on
// every Schedule, flushes once activity stops for the debounce interval.
// Flushes are serialised; the callback must not call Flush itself.
type UpdateScheduler[K comparable] struct {
	name     string
	clock    clock.Clock
	throttle time.Duration
	debounce time.Duration
	onFlush  FlushFunc[K]

	mu            sync.Mutex
	pending       map[K]struct{}
	order         []K
	throttleTimer clock.Timer
	debounceTimer clock.Timer
	throttleSeq   uint64
	debounceSeq   uint64
	destroyed     bool

	flushMu sync.Mutex
}

// NewUpdateScheduler creates a scheduler. A nil clock uses the wall clock.
func NewUpdateScheduler[K comparable](
	name string,
	clk clock.Clock,
	throttle, debounce time.Duration,
	onFlush FlushFunc[K],
) *UpdateScheduler[K] {
	if clk == nil {
		clk = clock.New()
	}
	return &UpdateScheduler[K]{
		name:     name,
		clock:    clk,
		throttle: throttle,
		debounce: debounce,
		onFlush:  onFlush,
		pending:  make(map[K]struct{}),
	}
}

// Schedule marks key as pending and (re)arms the timers.
func (s *UpdateScheduler[K]) Schedule(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	if _, ok := s.pending[key]; !ok {
		s.pending[key] = struct{}{}
		s.order = append(s.order, key)
	}

	if s.throttleTimer == nil {
		s.throttleSeq++
		seq := s.throttleSeq
		s.throttleTimer = s.clock.AfterFunc(s.throttle, func() { s.fireThrottle(seq) })
	}

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceSeq++
	seq := s.debounceSeq
	s.debounceTimer = s.clock.AfterFunc(s.debounce, func() { s.fireDebounce(seq) })
}

// Flush delivers all pending keys now. The pending set is cleared before the
// callback runs; a failing callback does not re-queue its keys.
func (s *UpdateScheduler[K]) Flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	keys := s.takeLocked()
	s.mu.Unlock()

	s.deliver(keys)
}

// Pending returns the number of keys waiting for a flush.
func (s *UpdateScheduler[K]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Destroy cancels both timers and drops pending keys. Later Schedule calls are ignored.
func (s *UpdateScheduler[K]) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimersLocked()
	s.pending = make(map[K]struct{})
	s.order = nil
	s.destroyed = true
}

func (s *UpdateScheduler[K]) fireThrottle(seq uint64) {
	s.mu.Lock()
	if s.destroyed || seq != s.throttleSeq || s.throttleTimer == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	logger.Debug("%s: throttle flush", s.name)
	s.Flush()
}

func (s *UpdateScheduler[K]) fireDebounce(seq uint64) {
	s.mu.Lock()
	if s.destroyed || seq != s.debounceSeq || s.debounceTimer == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	logger.Debug("%s: debounce flush", s.name)
	s.Flush()
}

// takeLocked snapshots and clears the pending set and disarms both timers.
func (s *UpdateScheduler[K]) takeLocked() []K {
	s.stopTimersLocked()
	keys := s.order
	s.pending = make(map[K]struct{})
	s.order = nil
	return keys
}

func (s *UpdateScheduler[K]) stopTimersLocked() {
	if s.throttleTimer != nil {
		s.throttleTimer.Stop()
		s.throttleTimer = nil
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	// Invalidate callbacks that already left the timer queue.
	s.throttleSeq++
	s.debounceSeq++
}

func (s *UpdateScheduler[K]) deliver(keys []K) {
	if len(keys) == 0 || s.onFlush == nil {
		return
	}
	if err := s.onFlush(keys); err != nil {
		logger.Warn("%s: flush of %d keys failed: %v", s.name, len(keys), err)
	}
}
