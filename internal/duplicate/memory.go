package duplicate

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps fingerprints in a bounded in-process LRU. Entries expire
// after ttl; a zero ttl keeps them until evicted by size.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryStore creates a store holding at most size fingerprints (0 = unbounded)
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, time.Time](size, nil, ttl),
	}
}

func (s *MemoryStore) CheckAndAdd(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(fingerprint); ok {
		return true, nil
	}
	s.cache.Add(fingerprint, time.Now())
	return false, nil
}

// Len returns the number of live fingerprints
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
