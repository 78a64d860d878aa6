// Package cache provides the key/value stores behind the prediction cache,
// the fundamentals response cache and the trade execution lock.
//
// Redis is the primary backend. When it cannot be reached at startup the
// application falls back to an in-process go-cache store with the same
// JSON/TTL semantics, so a single instance keeps working (without sharing
// state across replicas).
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss means the key is absent or expired
	ErrCacheMiss = errors.New("cache miss")
	// ErrCorrupt means the stored payload could not be decoded
	ErrCorrupt = errors.New("corrupt cache payload")
)

// Store is a JSON key/value store with per-key TTL
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	_ Store = (*RedisClient)(nil)
	_ Store = (*MemoryStore)(nil)
)

// NewStore returns the Redis client when available, otherwise a memory store
func NewStore(redis *RedisClient) Store {
	if redis != nil {
		return redis
	}
	return NewMemoryStore(5 * time.Minute)
}
