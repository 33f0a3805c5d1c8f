package mempool

import "sync"

// DefaultCacheSize bounds the committed-hash cache when none is configured.
const DefaultCacheSize = 10000

// RecentSet remembers the last N keys added. Once full, each Add forgets
// the oldest key.
type RecentSet[K comparable] struct {
	mu     sync.RWMutex
	keys   map[K]struct{}
	ring   []K
	next   int
	filled int
}

// NewRecentSet creates a set holding at most capacity keys.
func NewRecentSet[K comparable](capacity int) *RecentSet[K] {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &RecentSet[K]{
		keys: make(map[K]struct{}, capacity),
		ring: make([]K, capacity),
	}
}

// Add records key. Adding a key already present is a no-op.
func (s *RecentSet[K]) Add(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return
	}
	if s.filled == len(s.ring) {
		delete(s.keys, s.ring[s.next])
	} else {
		s.filled++
	}
	s.ring[s.next] = key
	s.keys[key] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}

// Contains reports whether key is among the remembered keys.
func (s *RecentSet[K]) Contains(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of remembered keys.
func (s *RecentSet[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filled
}
