package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vuoksi-trader/logging"
)

// RedisClient wraps redis.Client
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client. It returns nil when the server
// cannot be reached so callers can fall back to an in-process store.
func NewRedisClient(host, port, password string, logger *logging.Logger) *RedisClient {
	log := logger.Component("redis")
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("failed to connect to redis")
		client.Close()
		return nil
	}

	log.Info().Str("addr", addr).Msg("connected to redis")
	return &RedisClient{client: client}
}

// NewRedisClientFrom wraps an existing go-redis client
func NewRedisClientFrom(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Set stores a JSON-encoded value with expiration
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get decodes a JSON value into dest. A missing key yields ErrCacheMiss and a
// payload that does not decode yields an error wrapping ErrCorrupt.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// Delete removes a key from Redis
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return r.client.Del(ctx, key).Err()
}

// Exists checks if a key exists in Redis
func (r *RedisClient) Exists(ctx context.Context, key string) bool {
	if r == nil || r.client == nil {
		return false
	}

	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}

	return result > 0
}

// SetNX stores value only when key is absent
func (r *RedisClient) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("redis client not initialized")
	}
	return r.client.SetNX(ctx, key, value, expiration).Result()
}

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeleteIfEquals removes key when its value equals token
func (r *RedisClient) DeleteIfEquals(ctx context.Context, key, token string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
}

// Ping checks the connection
func (r *RedisClient) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r != nil && r.client != nil {
		return r.client.Close()
	}
	return nil
}
