package logger

import (
	"context"

	"go.uber.org/zap"
)

type traceKey struct{}

// WithTraceID 将请求追踪ID写入 context，异步任务沿用同一个 ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID 从 context 读取追踪ID
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// FromContext 返回带 trace_id 字段的 logger，base 为 nil 时使用全局 Log
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Log
	}
	if id := TraceID(ctx); id != "" {
		return base.With(zap.String("trace_id", id))
	}
	return base
}
