package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/interfaces/http/dto"
	apperrors "novel-orchestrator/pkg/errors"
)

// BodyLimit 限制请求体大小，超限返回 413
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			dto.Fail(c, apperrors.ErrPayloadTooLarge)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// Sanitize 移除 JSON 请求体字符串中的控制字符，保留换行与制表符
func Sanitize() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
			c.Next()
			return
		}
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				dto.Fail(c, apperrors.ErrPayloadTooLarge)
				return
			}
			dto.Fail(c, apperrors.Validation("unreadable request body"))
			return
		}

		body := raw
		var doc any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if len(raw) > 0 && dec.Decode(&doc) == nil {
			if cleaned, changed := sanitizeValue(doc); changed {
				if out, err := json.Marshal(cleaned); err == nil {
					body = out
				}
			}
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

func sanitizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		s := StripControl(t)
		return s, s != t
	case map[string]any:
		changed := false
		for k, item := range t {
			if cleaned, ok := sanitizeValue(item); ok {
				t[k] = cleaned
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, item := range t {
			if cleaned, ok := sanitizeValue(item); ok {
				t[i] = cleaned
				changed = true
			}
		}
		return t, changed
	}
	return v, false
}

// StripControl 删除除换行、回车、制表符以外的控制字符
func StripControl(s string) string {
	if strings.IndexFunc(s, isStrippable) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippable(r) {
			return -1
		}
		return r
	}, s)
}

func isStrippable(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
}
