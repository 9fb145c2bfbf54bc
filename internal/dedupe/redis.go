package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with SET NX PX so every gateway and
// consumer instance shares one view of held keys.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

// NewRedisLocker stores owner as the key value for debugging.
func NewRedisLocker(client *redis.Client, owner string) *RedisLocker {
	if owner == "" {
		owner = "1"
	}
	return &RedisLocker{client: client, owner: owner}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, r.owner, ttl).Result()
}

func (r *RedisLocker) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
