package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"novel-orchestrator/pkg/logger"
)

// TraceIDHeader 响应中回写的 trace ID 头
const TraceIDHeader = "X-Trace-ID"

// untracedPaths 探针与指标端点不产生 span
var untracedPaths = map[string]struct{}{
	"/health":                  {},
	"/live":                    {},
	"/ready":                   {},
	"/metrics":                 {},
	"/novel-generation/health": {},
}

// Trace 基于 otelgin 的入站追踪，span 名使用路由模板
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skip := untracedPaths[r.URL.Path]
			return !skip
		}),
	)
}

// TraceContext 把 trace/span ID 与小说 ID 带入日志上下文，并给 span 补充业务属性
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)
		sc := span.SpanContext()
		if sc.IsValid() {
			traceID := sc.TraceID().String()
			c.Set("trace_id", traceID)
			ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
			ctx = logger.WithContext(ctx, logger.SpanIDKey, sc.SpanID().String())
			c.Header(TraceIDHeader, traceID)
		}
		if novelID := c.Param("novelId"); novelID != "" {
			ctx = logger.WithContext(ctx, logger.NovelIDKey, novelID)
			span.SetAttributes(attribute.String("novel.id", novelID))
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
