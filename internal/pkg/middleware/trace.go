package middleware

import (
	"shop_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxTraceID    = "traceID"
	traceIDHeader = "X-Trace-ID"
)

// TraceMiddleware 透传或生成追踪ID，同时写入 gin 上下文与 request context
// 服务层通过 logger.FromContext 输出同一个 trace_id
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceIDHeader)
		if traceID == "" || len(traceID) > 64 {
			traceID = uuid.NewString()
		}

		c.Set(ctxTraceID, traceID)
		c.Header(traceIDHeader, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}

// TraceID 获取当前请求的追踪ID
func TraceID(c *gin.Context) string {
	return c.GetString(ctxTraceID)
}
