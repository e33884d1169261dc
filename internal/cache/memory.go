package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store for single-node deployments.
type MemoryStore struct {
	items *gocache.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose expired entries are purged every
// cleanupInterval. A zero interval disables the janitor goroutine; expired
// entries are then only dropped on access.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("unexpected value type %T for key %s", v, key)
	}
	return data, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	s.items.Set(key, stored, ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.items.Delete(key)
	}
	return nil
}

func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	for key := range s.items.Items() {
		if ok, _ := path.Match(pattern, key); ok {
			s.items.Delete(key)
		}
	}
	return nil
}

func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
