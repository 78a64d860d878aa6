package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store backed by go-cache. Values are stored as
// JSON bytes so decoding behaves exactly like the Redis backend.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates a memory store that purges expired keys every cleanup interval
func NewMemoryStore(cleanup time.Duration) *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanup)}
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// Set stores a JSON-encoded value with expiration
func (m *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items.Set(key, b, ttlOrForever(ttl))
	return nil
}

// Get decodes the stored value into dest
func (m *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	b, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("%w: unexpected type %T", ErrCorrupt, raw)
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// Delete removes a key
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Add stores value only when key is absent or expired
func (m *MemoryStore) Add(key, value string, ttl time.Duration) bool {
	return m.items.Add(key, value, ttlOrForever(ttl)) == nil
}

// DeleteIfEquals removes key when it still holds value
func (m *MemoryStore) DeleteIfEquals(key, value string) {
	if current, ok := m.items.Get(key); ok && current == value {
		m.items.Delete(key)
	}
}
