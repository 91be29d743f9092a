package ratelimit

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(
		provideLimiter,
		NewLock,
	),
)

func provideLimiter(client *redis.Client) *Limiter {
	return NewLimiter(client, "")
}
