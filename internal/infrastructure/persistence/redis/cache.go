package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 缓存服务
// 所有方法在 Redis 不可用时返回空值或 false，不向调用方抛错
type Cache struct {
	client    *Client
	opTimeout time.Duration
}

// NewCache 创建缓存服务
func NewCache(client *Client, opTimeout time.Duration) *Cache {
	if opTimeout <= 0 {
		opTimeout = 15 * time.Second
	}
	return &Cache{client: client, opTimeout: opTimeout}
}

func (c *Cache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// Get 获取字符串值，未命中或失败时 ok=false
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	val, err := c.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			return "", false
		}
		span.RecordError(err)
		c.degraded(ctx, "get", key, err)
		return "", false
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return val, true
}

// GetJSON 获取并反序列化 JSON 值
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logger.Warn(ctx, "cache value is not valid json, ignoring", "key", key, "error", err.Error())
		return false
	}
	return true
}

// Set 设置缓存值，非字符串值以 JSON 存储
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	payload, err := encode(value)
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, "cache value could not be encoded", "key", key, "error", err.Error())
		return false
	}

	if err := c.client.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		span.RecordError(err)
		c.degraded(ctx, "set", key, err)
		return false
	}
	return true
}

// Del 删除键
func (c *Cache) Del(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	ctx, span := cacheTracer.Start(ctx, "cache.Del",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		c.degraded(ctx, "del", keys[0], err)
		return false
	}
	return true
}

// HSet 写入哈希字段，ttl > 0 时刷新过期时间
func (c *Cache) HSet(ctx context.Context, key string, values map[string]any, ttl time.Duration) bool {
	ctx, span := cacheTracer.Start(ctx, "cache.HSet",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	fields := make(map[string]any, len(values))
	for k, v := range values {
		encoded, err := encode(v)
		if err != nil {
			logger.Warn(ctx, "cache hash field could not be encoded", "key", key, "field", k, "error", err.Error())
			return false
		}
		fields[k] = encoded
	}

	pipe := c.client.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		c.degraded(ctx, "hset", key, err)
		return false
	}
	return true
}

// HGet 读取哈希字段
func (c *Cache) HGet(ctx context.Context, key, field string) (string, bool) {
	ctx, span := cacheTracer.Start(ctx, "cache.HGet",
		trace.WithAttributes(attribute.String("cache.key", key), attribute.String("cache.field", field)))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	val, err := c.client.rdb.HGet(ctx, key, field).Result()
	if err != nil {
		if err != redis.Nil {
			span.RecordError(err)
			c.degraded(ctx, "hget", key, err)
		}
		return "", false
	}
	return val, true
}

// HGetAll 读取整个哈希，键不存在时 ok=false
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, bool) {
	ctx, span := cacheTracer.Start(ctx, "cache.HGetAll",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	ctx, cancel := c.bound(ctx)
	defer cancel()

	val, err := c.client.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		c.degraded(ctx, "hgetall", key, err)
		return nil, false
	}
	if len(val) == 0 {
		return nil, false
	}
	return val, true
}

// InvalidatePattern 按模式删除缓存
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) bool {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		c.degraded(ctx, "scan", pattern, err)
		return false
	}
	return c.Del(ctx, keys...)
}

func (c *Cache) degraded(ctx context.Context, op, key string, err error) {
	metrics.CacheRequests.WithLabelValues("error").Inc()
	logger.Warn(ctx, "cache unavailable, degrading", "op", op, "key", key, "error", err.Error())
}

func encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(b), nil
}
