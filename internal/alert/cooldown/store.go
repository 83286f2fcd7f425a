// Package cooldown provides the alert dedup store: at most one alert per
// (metric, level) within the cooldown window, even when checks race.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// Store claims the right to fire an alert. Acquire must be atomic per key:
// of N racing callers inside one window, exactly one sees true.
type Store interface {
	// Acquire returns true when no alert for (metric, level) fired within window,
	// recording the claim; false when the alert is still cooling down.
	Acquire(ctx context.Context, metric, level string, window time.Duration) (bool, error)
	// Release drops the claim for (metric, level) so the next breach may fire
	// immediately. Called when the durable record behind a claim failed.
	Release(ctx context.Context, metric, level string) error
}

type entry struct {
	lastFiredAt time.Time
}

// MemoryStore is the in-process Store for single-instance deployments.
// State is transient and rebuilt empty on restart.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-process cooldown store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), nowF: time.Now}
}

// Acquire checks and claims the key under one lock, so two racing callers cannot
// both pass the window check. Stale entries are evicted as they are touched.
func (s *MemoryStore) Acquire(_ context.Context, metric, level string, window time.Duration) (bool, error) {
	key := metric + "/" + level
	now := s.nowF()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok && now.Sub(e.lastFiredAt) < window {
		return false, nil
	}
	s.m[key] = entry{lastFiredAt: now}
	return true, nil
}

// Release drops the claim so a follow-up breach is not suppressed.
func (s *MemoryStore) Release(_ context.Context, metric, level string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, metric+"/"+level)
	return nil
}
