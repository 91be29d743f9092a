package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "tradeleague:rl:"

// slidingWindowScript prunes entries older than the window, checks whether
// admitting n more would exceed the limit and, only then, records them.
// The whole check-and-add runs server-side so two concurrent callers can
// never both observe "under the limit" and both be admitted.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local token = ARGV[5]

redis.call("ZREMRANGEBYSCORE", key, 0, now - window_ms)

local count = redis.call("ZCARD", key)
if count + n > limit then
  return 0
end

for i = 1, n do
  redis.call("ZADD", key, now, token .. ":" .. i)
end
redis.call("PEXPIRE", key, window_ms)
return 1
`)

// Limiter is a distributed sliding-window counter over a per-key ordered set.
type Limiter struct {
	client *redis.Client
	prefix string
	seq    atomic.Int64
	// nowFn is swappable in tests
	nowFn func() time.Time
}

func NewLimiter(client *redis.Client, prefix string) *Limiter {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Limiter{
		client: client,
		prefix: prefix,
		nowFn:  time.Now,
	}
}

// Allow reports whether n more requests for key fit inside the window. When
// they do, the entries are recorded atomically; when they do not, nothing is
// recorded.
func (l *Limiter) Allow(ctx context.Context, key string, window time.Duration, maxRequests int64, n int64) (bool, error) {
	if window <= 0 {
		return false, fmt.Errorf("invalid rate limit window")
	}
	if n <= 0 {
		n = 1
	}

	now := l.nowFn()
	windowMS := window.Milliseconds()
	// set members must be unique per admitted entry, even within one
	// millisecond, so a process-local sequence is folded in
	token := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		now.UnixMilli(), windowMS, maxRequests, n, token,
	).Result()
	if err != nil {
		return false, err
	}

	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis response")
	}

	return allowed == 1, nil
}
