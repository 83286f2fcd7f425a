package cooldown

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared Store for multi-instance deployments. SET NX PX gives the
// atomic claim: the key exists for exactly the cooldown window, and only the caller
// that created it may fire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a cooldown store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "alert:cooldown:"}
}

// Acquire claims (metric, level) with SET NX and a TTL of window.
// Returns an error on Redis failure; callers decide whether to fail open or closed.
func (s *RedisStore) Acquire(ctx context.Context, metric, level string, window time.Duration) (bool, error) {
	key := s.prefix + metric + "/" + level
	return s.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
}

// Release deletes the claim key immediately, ahead of its TTL.
func (s *RedisStore) Release(ctx context.Context, metric, level string) error {
	return s.client.Del(ctx, s.prefix+metric+"/"+level).Err()
}
