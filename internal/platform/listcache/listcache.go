// Package listcache is a small in-process cache for incident list and count
// responses, organized into named buckets so a lifecycle transition can
// invalidate every view that lists or counts incidents in one call.
package listcache

import (
	"sync"
	"time"
)

// entry holds a cached value and its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Store is a thread-safe bucketed cache with lazy expiration.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]entry
	ttl     time.Duration
}

// New creates a Store whose entries expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{
		buckets: make(map[string]map[string]entry),
		ttl:     ttl,
	}
}

// Get retrieves a value. Expired entries are deleted and reported as a miss.
func (s *Store) Get(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	b, ok := s.buckets[bucket]
	var e entry
	if ok {
		e, ok = b[key]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		if b, ok := s.buckets[bucket]; ok {
			delete(b, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

// Set stores a value in the given bucket.
func (s *Store) Set(bucket, key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]entry)
		s.buckets[bucket] = b
	}
	b[key] = entry{data: value, expiresAt: time.Now().Add(s.ttl)}
}

// Invalidate drops one bucket.
func (s *Store) Invalidate(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, bucket)
}

// InvalidateAll drops every bucket.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]map[string]entry)
}

// Len reports the number of live buckets, for tests and introspection.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}
