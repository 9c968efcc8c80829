// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/infrastructure/persistence/redis"
	"novel-orchestrator/internal/interfaces/http/dto"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/metrics"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	// ClientHeader 携带 API Key 的请求头，仅当值在 APIKeys 中时作为客户端标识
	ClientHeader string
	APIKeys      []string
}

// RateLimiter 固定窗口限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

// RateLimit 按客户端标识的固定窗口限流，限流器故障时放行
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.ClientHeader == "" {
		cfg.ClientHeader = "X-API-Key"
	}

	keys := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		client := clientIdentity(c, cfg.ClientHeader, keys)
		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), redis.BuildRateLimitKey(client), cfg.RequestsPerWindow, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitRejected.Inc()
			dto.TooManyRequests(c, retryAfter)
			return
		}
		c.Next()
	}
}

// clientIdentity 优先使用鉴权后的 client_id，其次是已配置的 API Key，最后按客户端 IP
func clientIdentity(c *gin.Context, header string, keys map[string]struct{}) string {
	if id := c.GetString("client_id"); id != "" {
		return "client:" + id
	}
	if key := c.GetHeader(header); key != "" {
		if _, ok := keys[key]; ok {
			sum := sha256.Sum256([]byte(key))
			return "key:" + hex.EncodeToString(sum[:8])
		}
	}
	return "ip:" + c.ClientIP()
}
