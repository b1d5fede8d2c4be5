package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStampScript performs the check-and-stamp atomically in Redis.
// KEYS[1] = stamp key (e.g. "cooldown:submit:provider-1")
// ARGV[1] = current unix time (milliseconds)
// ARGV[2] = cooldown (milliseconds)
// Returns {allowed, remaining_ms}.
var redisStampScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])

local last = tonumber(redis.call("GET", key))
if last then
    local until_ms = last + cooldown
    if now < until_ms then
        return {0, until_ms - now}
    end
end

redis.call("SET", key, now, "PX", cooldown * 2)
return {1, 0}
`)

// RedisStore shares cooldown stamps across coordinator instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects a stamp store to Redis.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Allow(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Duration, error) {
	res, err := redisStampScript.Run(ctx, s.client, []string{"cooldown:" + key},
		now.UnixMilli(), cooldown.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis cooldown: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("redis cooldown: unexpected script reply %v", res)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)

	return allowed == 1, time.Duration(remaining) * time.Millisecond, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }
