package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter limits requests per key in a fixed time window backed
// by Redis, so the cap holds across instances.
type FixedWindowLimiter struct {
	client *Client
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter on top of an existing client.
func NewFixedWindowLimiter(client *Client, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		client: client,
		prefix: "asistente:ratelimit",
		limit:  limit,
		window: window,
	}
}

// Allow returns true when the key is within quota for the current window.
// On Redis failures it fails closed and returns false.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	if windowMs <= 0 || l.limit <= 0 {
		return true
	}
	windowSlot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowSlot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, l.client.rdb, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}
