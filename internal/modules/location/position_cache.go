// README: Last known driver position, used to derive Before for change-feed events.
package location

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cabdispatch/internal/types"
)

// PositionCache swaps in the latest position and returns the one it replaced.
type PositionCache interface {
	Swap(ctx context.Context, driverID types.ID, p *types.Point) (*types.Point, error)
}

const positionKeyPrefix = "dispatch:driver:pos:"

// RedisPositionCache keeps positions in Redis so every replica sees the same previous value.
type RedisPositionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPositionCache(rdb *redis.Client, ttl time.Duration) *RedisPositionCache {
	return &RedisPositionCache{rdb: rdb, ttl: ttl}
}

func (c *RedisPositionCache) Swap(ctx context.Context, driverID types.ID, p *types.Point) (*types.Point, error) {
	key := positionKeyPrefix + string(driverID)
	if p == nil {
		prev, err := c.rdb.GetDel(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return decodePosition(prev)
	}
	prev, err := c.rdb.SetArgs(ctx, key, encodePosition(*p), redis.SetArgs{Get: true, TTL: c.ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePosition(prev)
}

func encodePosition(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

func decodePosition(v string) (*types.Point, error) {
	lat, lng, ok := strings.Cut(v, ",")
	if !ok {
		return nil, errors.New("malformed cached position")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, err
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, err
	}
	return &types.Point{Lat: la, Lng: ln}, nil
}

// MemoryPositionCache is the single-process fallback.
type MemoryPositionCache struct {
	mu   sync.Mutex
	last map[types.ID]types.Point
}

func NewMemoryPositionCache() *MemoryPositionCache {
	return &MemoryPositionCache{last: make(map[types.ID]types.Point)}
}

func (c *MemoryPositionCache) Swap(_ context.Context, driverID types.ID, p *types.Point) (*types.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var prev *types.Point
	if v, ok := c.last[driverID]; ok {
		prev = &v
	}
	if p == nil {
		delete(c.last, driverID)
	} else {
		c.last[driverID] = *p
	}
	return prev, nil
}
