// Package redis 提供 Redis 缓存、限流与连接管理
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/pkg/logger"
)

var tracer = otel.Tracer("redis")

const startupPingTimeout = 5 * time.Second

// Client 共享的 go-redis 连接，缓存、限流与任务队列都基于它
type Client struct {
	rdb *redis.Client
}

// NewClient 建立连接池并探测一次，Redis 不可达只告警，调用方按降级语义继续
func NewClient(ctx context.Context, cfg *config.RedisConfig) *Client {
	c := &Client{rdb: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn(ctx, "redis unreachable at startup, continuing in degraded mode",
			"addr", cfg.Addr(), "error", err.Error())
	}
	return c
}

// NewClientFromRedis 包装已有连接，测试里配合 miniredis 使用
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Redis 底层 go-redis 客户端
func (c *Client) Redis() *redis.Client { return c.rdb }

// Close 关闭连接池
func (c *Client) Close() error { return c.rdb.Close() }

// HealthCheck PING 探活，并把连接池状态记到 span 上
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if stats := c.rdb.PoolStats(); stats != nil {
		span.SetAttributes(
			attribute.Int("redis.pool.total", int(stats.TotalConns)),
			attribute.Int("redis.pool.idle", int(stats.IdleConns)),
		)
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
