package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vuoksi-trader/logging"
)

// Locker grants short-lived exclusive scopes keyed by string.
// A held key is reported with ok=false rather than by blocking.
type Locker struct {
	redis  *RedisClient
	memory *MemoryStore
	log    *logging.Logger
}

// NewLocker uses Redis when available so that the scope spans replicas, and
// an in-process store otherwise
func NewLocker(redis *RedisClient, logger *logging.Logger) *Locker {
	l := &Locker{redis: redis, log: logger.Component("locker")}
	if redis == nil {
		l.memory = NewMemoryStore(time.Minute)
	}
	return l
}

// Acquire takes the lock for key. release must be called once the scope ends.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	token := uuid.NewString()
	lockKey := "lock:" + key

	if l.redis != nil {
		ok, err := l.redis.SetNX(ctx, lockKey, token, ttl)
		if err != nil || !ok {
			return func() {}, false, err
		}
		return func() {
			// Release must outlive a cancelled request context.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.redis.DeleteIfEquals(ctx, lockKey, token); err != nil {
				l.log.Warn().Err(err).Str("key", lockKey).Msg("failed to release lock, waiting for ttl")
			}
		}, true, nil
	}

	if !l.memory.Add(lockKey, token, ttl) {
		return func() {}, false, nil
	}
	return func() { l.memory.DeleteIfEquals(lockKey, token) }, true, nil
}
