package telephony

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLegMap stores child→parent mappings in Redis with a TTL per key,
// making mappings visible across processes and survivable across restarts.
// This is the multi-instance variant of MemoryLegMap.
type RedisLegMap struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLegMap(rdb *redis.Client, ttl time.Duration) *RedisLegMap {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &RedisLegMap{rdb: rdb, ttl: ttl}
}

func legKey(childCallID string) string {
	return "legmap:" + childCallID
}

func (m *RedisLegMap) Put(ctx context.Context, childCallID, parentCallID string) error {
	return m.rdb.Set(ctx, legKey(childCallID), parentCallID, m.ttl).Err()
}

func (m *RedisLegMap) Get(ctx context.Context, childCallID string) (string, bool, error) {
	v, err := m.rdb.Get(ctx, legKey(childCallID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *RedisLegMap) Delete(ctx context.Context, childCallID string) error {
	return m.rdb.Del(ctx, legKey(childCallID)).Err()
}

func (m *RedisLegMap) Close() error { return nil }
