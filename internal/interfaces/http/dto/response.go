// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "novel-orchestrator/pkg/errors"
)

// Response 统一响应信封
type Response struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Data       any          `json:"data,omitempty"`
	RetryAfter int          `json:"retryAfter,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	RequestID  string       `json:"requestId,omitempty"`
	TraceID    string       `json:"traceId,omitempty"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func envelope(c *gin.Context, success bool) Response {
	return Response{
		Success:   success,
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString("request_id"),
		TraceID:   c.GetString("trace_id"),
	}
}

// Success 返回 200
func Success(c *gin.Context, data any) {
	resp := envelope(c, true)
	resp.Data = data
	c.JSON(http.StatusOK, resp)
}

// Created 返回 201
func Created(c *gin.Context, data any) {
	resp := envelope(c, true)
	resp.Message = "created"
	resp.Data = data
	c.JSON(http.StatusCreated, resp)
}

// Accepted 返回 202
func Accepted(c *gin.Context, data any) {
	resp := envelope(c, true)
	resp.Message = "accepted"
	resp.Data = data
	c.JSON(http.StatusAccepted, resp)
}

// Error 返回指定状态码的错误响应并终止处理链
func Error(c *gin.Context, status int, code apperrors.ErrorCode, message string) {
	resp := envelope(c, false)
	resp.Message = message
	resp.Error = &ErrorDetail{Code: string(code), Message: message}
	c.AbortWithStatusJSON(status, resp)
}

// Fail 将错误转换为客户端可见的响应
func Fail(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		err = apperrors.ErrPayloadTooLarge
	}
	appErr := apperrors.AsAppError(err)
	status := apperrors.StatusOf(appErr)
	resp := envelope(c, false)
	resp.Message = appErr.Message
	resp.Error = &ErrorDetail{Code: string(appErr.Code), Message: appErr.Message, Details: appErr.Detail}
	if gin.Mode() == gin.DebugMode && appErr.Err != nil && resp.Error.Details == "" {
		resp.Error.Details = appErr.Err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

// TooManyRequests 返回 429 及重试等待秒数
func TooManyRequests(c *gin.Context, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	resp := envelope(c, false)
	resp.Message = "rate limit exceeded"
	resp.Error = &ErrorDetail{Code: string(apperrors.CodeTooManyRequests), Message: resp.Message}
	resp.RetryAfter = secs
	c.Header("Retry-After", itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
}
