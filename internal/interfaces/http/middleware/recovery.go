// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
	"novel-orchestrator/pkg/logger"
)

// Recovery 捕获 handler panic，记录堆栈后返回统一的 500 错误体；连接已断开时由 gin 直接中止
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error(c.Request.Context(), "panic recovered",
			fmt.Errorf("%v", recovered),
			"route", c.FullPath(),
			"method", c.Request.Method,
			"stack", string(debug.Stack()),
		)
		dto.Error(c, http.StatusInternalServerError, apperrors.CodeInternalError, "internal server error")
	})
}
