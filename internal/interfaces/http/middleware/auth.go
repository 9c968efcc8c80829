// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
	"novel-orchestrator/pkg/utils"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
	// SkipPaths 跳过认证的路径前缀
	SkipPaths []string
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/novel-generation/health",
	"/ready",
	"/live",
	"/metrics",
}

// Auth 可选的 Bearer JWT 认证
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		for _, p := range cfg.SkipPaths {
			if c.Request.URL.Path == p || strings.HasPrefix(c.Request.URL.Path, p+"/") {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.CodeTokenMissing, "missing authorization header")
			return
		}
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, utils.ErrExpiredToken) {
				abortUnauthorized(c, apperrors.CodeTokenExpired, "token expired")
				return
			}
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid token")
			return
		}

		c.Set("client_id", claims.ClientID)
		ctx := logger.WithContext(c.Request.Context(), logger.ClientIDKey, claims.ClientID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code apperrors.ErrorCode, msg string) {
	dto.Error(c, http.StatusUnauthorized, code, msg)
}
