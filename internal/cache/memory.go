package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// This is the default store for single-instance deployments.
// It provides the fastest performance but doesn't share state across instances.
type MemoryStore struct {
	data       map[string]*entry
	mu         sync.RWMutex
	gcInterval time.Duration
	stopCh     chan struct{}
	stopped    int32 // Atomic flag to prevent double-close (0=running, 1=stopped)
}

type entry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory cache store.
// gcInterval specifies how often to clean up expired entries.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}

	store := &MemoryStore{
		data:       make(map[string]*entry),
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
	}

	go store.gc()

	return store
}

// Get retrieves the value for a key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[key]
	if !exists || time.Now().After(e.expiresAt) {
		return "", ErrCacheMiss
	}
	return e.value, nil
}

// Put stores a value with a TTL.
func (s *MemoryStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, _ := strconv.ParseInt(value, 10, 64)
	s.data[key] = &entry{
		value:     value,
		count:     count,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Increment atomically increments the counter for a key.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, exists := s.data[key]

	if !exists || now.After(e.expiresAt) {
		// Create new entry or reset expired one
		s.data[key] = &entry{
			value:     "1",
			count:     1,
			expiresAt: now.Add(ttl),
		}
		return 1, nil
	}

	e.count++
	e.value = strconv.FormatInt(e.count, 10)
	return e.count, nil
}

// Expire resets the TTL of an existing key.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.data[key]; exists {
		e.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

// Forget removes a key.
func (s *MemoryStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Close stops the garbage collection goroutine.
func (s *MemoryStore) Close() error {
	// Check if already stopped (prevent double-close)
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return nil
	}
	close(s.stopCh)
	return nil
}

// gc periodically removes expired entries.
func (s *MemoryStore) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes all expired entries.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, key)
		}
	}
}
