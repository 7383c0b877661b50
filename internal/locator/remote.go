package locator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ipregion/internal/xdb"
)

// RemoteCache：跨进程共享的结果缓存
type RemoteCache interface {
	Get(ctx context.Context, ip string) (xdb.Region, bool, error)
	Set(ctx context.Context, ip string, r xdb.Region) error
	Close() error
}

// RedisCache：以 "ip:<addr>" 为键、JSON 为值的 Redis 结果缓存
type RedisCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisCache：ttl 为 0 时不设置过期
func NewRedisCache(rc *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rc: rc, ttl: ttl}
}

func redisKey(ip string) string { return "ip:" + ip }

func (c *RedisCache) Get(ctx context.Context, ip string) (xdb.Region, bool, error) {
	s, err := c.rc.Get(ctx, redisKey(ip)).Result()
	if errors.Is(err, redis.Nil) {
		return xdb.Region{}, false, nil
	}
	if err != nil {
		return xdb.Region{}, false, err
	}
	var r xdb.Region
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return xdb.Region{}, false, err
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ip string, r xdb.Region) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, redisKey(ip), b, c.ttl).Err()
}

func (c *RedisCache) Close() error { return c.rc.Close() }
