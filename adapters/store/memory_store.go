package store

import (
	"context"
	"sync"
	"time"

	"github.com/blackhole-dns/warden/ports"
)

// MemoryStore is an in-memory implementation of the ThrottleStore interface.
type MemoryStore struct {
	failures map[string]*failureWindow
	blocked  map[string]time.Time
	mu       sync.Mutex
}

type failureWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryStore creates a new in-memory throttle store.
func NewMemoryStore() ports.ThrottleStore {
	return &MemoryStore{
		failures: make(map[string]*failureWindow),
		blocked:  make(map[string]time.Time),
	}
}

// RecordFailure counts one failed attempt within the rolling window.
func (s *MemoryStore) RecordFailure(ctx context.Context, remoteAddr string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.failures[remoteAddr]
	if !ok || now.After(w.resetAt) {
		w = &failureWindow{resetAt: now.Add(window)}
		s.failures[remoteAddr] = w
	}
	w.count++

	return w.count, nil
}

// Block locks the address out for the cooldown period.
func (s *MemoryStore) Block(ctx context.Context, remoteAddr string, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry := time.Now().Add(cooldown)
	s.blocked[remoteAddr] = expiry

	// Drop the entry once the cooldown has passed, unless it was extended.
	go func() {
		time.Sleep(cooldown)

		s.mu.Lock()
		defer s.mu.Unlock()

		if stored, exists := s.blocked[remoteAddr]; exists && !stored.After(expiry) {
			delete(s.blocked, remoteAddr)
		}
	}()

	return nil
}

// IsBlocked reports whether the address is locked out.
func (s *MemoryStore) IsBlocked(ctx context.Context, remoteAddr string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.blocked[remoteAddr]
	if !exists {
		return false, nil
	}

	if time.Now().After(expiry) {
		return false, nil
	}

	return true, nil
}
