package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const rateLimitKeyPrefix = "ratelimit:"

// fixedWindowScript 计数并在窗口首次命中时设置过期，保证两步原子
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIREAT', KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter 按客户端的固定窗口限流，窗口边界对齐到 window 的整数倍
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow 计入一次请求，超限时返回距窗口结束的等待时间；Redis 出错时由调用方决定是否放行
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow", trace.WithAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
	))
	defer span.End()

	now := time.Now()
	windowEnd := now.Truncate(window).Add(window)
	windowKey := key + ":" + strconv.FormatInt(windowEnd.UnixMilli(), 10)

	count, err := fixedWindowScript.Run(ctx, l.client.rdb, []string{windowKey}, windowEnd.UnixMilli()).Int64()
	if err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	allowed := count <= int64(limit)
	span.SetAttributes(
		attribute.Int64("ratelimit.count", count),
		attribute.Bool("ratelimit.allowed", allowed),
	)
	if allowed {
		return true, 0, nil
	}
	retryAfter := windowEnd.Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter, nil
}

// BuildRateLimitKey 客户端维度的限流键
func BuildRateLimitKey(clientID string) string {
	return rateLimitKeyPrefix + clientID
}
