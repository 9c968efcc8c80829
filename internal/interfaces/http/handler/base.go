// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
)

// bindJSON 解析请求体，失败时已写出错误响应
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			dto.Fail(c, apperrors.ErrPayloadTooLarge)
		case errors.Is(err, io.EOF):
			dto.Fail(c, apperrors.Validation("request body is required"))
		default:
			dto.Fail(c, apperrors.Validation("invalid request body: %v", err))
		}
		return false
	}
	return true
}

// chapterNumberParam 解析路径中的章节号
func chapterNumberParam(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("number"))
	if err != nil || n <= 0 {
		dto.Fail(c, apperrors.Validation("chapter number must be a positive integer"))
		return 0, false
	}
	return n, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
