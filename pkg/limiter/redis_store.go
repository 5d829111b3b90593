package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisSlidingWindowScript maintains one sorted set per key, scored by unix
// milliseconds, pruned and counted atomically.
// KEYS[1] = window key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = limit
var redisSlidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key) + 1
if count <= limit then
    redis.call("ZADD", key, now, now .. "-" .. math.random(1000000))
end
redis.call("PEXPIRE", key, window)

local oldest = 0
local head = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if head[2] then
    oldest = tonumber(head[2])
end
return {count, oldest}
`)

// RedisStore shares sliding windows across nodes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a redis-backed window store.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: "helix:limiter:",
	}
}

// Take implements Store via the atomic Lua script.
func (s *RedisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, time.Time, error) {
	res, err := redisSlidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("limiter: redis window script: %w", err)
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return 0, time.Time{}, fmt.Errorf("limiter: unexpected redis reply %T", res)
	}
	count, ok := vals[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("limiter: unexpected count type %T", vals[0])
	}
	oldestMs, _ := vals[1].(int64)

	var oldest time.Time
	if oldestMs > 0 {
		oldest = time.UnixMilli(oldestMs)
	}
	return int(count), oldest, nil
}

// Close releases the redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
