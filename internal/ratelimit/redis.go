package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const windowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

const redisTimeout = 250 * time.Millisecond

// RedisLimiter is a fixed-window counter shared by every replica.
// Redis failures admit the request.
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
}

// NewRedisLimiter creates a limiter storing counters under prefix
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "gigboard:ratelimit:"
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(windowScript),
		prefix: prefix,
	}
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	if l == nil || l.client == nil || key == "" || limit <= 0 || window <= 0 {
		return true
	}
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	allowed, err := l.script.Run(ctx, l.client, []string{l.prefix + key}, ttl, limit).Int64()
	if err != nil {
		slog.Warn("rate limiter unavailable, admitting request", "error", err, "key", key)
		return true
	}
	return allowed == 1
}
