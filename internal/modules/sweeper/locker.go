// README: Redis SETNX lock so a single replica runs each scheduled sweep.
package sweeper

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLocker struct {
	rdb   *redis.Client
	owner string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{rdb: rdb, owner: host}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
}
