package cache

import (
	"context"
	"sync"
	"time"
)

// LockoutState is the failed-login record for one key.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// Locked reports whether the key is locked at now.
func (s LockoutState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

type memoryEntry struct {
	state     LockoutState
	expiresAt time.Time
}

// MemoryLockoutStore keeps lockout state in process. It is used when no
// Redis URL is configured and in tests.
type MemoryLockoutStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryLockoutStore) Get(_ context.Context, key string) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return LockoutState{}, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return LockoutState{}, nil
	}
	return e.state, nil
}

func (s *MemoryLockoutStore) RecordFailure(_ context.Context, key string, now time.Time, threshold int, window time.Duration) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		e = memoryEntry{}
	}
	e.state.FailedCount++
	e.expiresAt = s.now().Add(staleTTL)
	if e.state.FailedCount >= threshold {
		until := now.Add(window).UTC()
		e.state.LockedUntil = &until
		e.expiresAt = s.now().Add(window + lockedGrace)
	}
	s.entries[key] = e
	return e.state, nil
}

func (s *MemoryLockoutStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
