package trace

import (
	"context"

	"github.com/google/uuid"
)

const TraceIDKey = "trace_id"

type ctxKey struct{}

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure returns ctx unchanged when it already carries a trace_id, otherwise attaches a fresh one.
func Ensure(ctx context.Context) context.Context {
	if FromContext(ctx) != "" {
		return ctx
	}
	return WithContext(ctx, GenerateTraceID())
}

// HeaderName 返回 trace ID 的 HTTP / AMQP header 名称
func HeaderName() string {
	return "X-Trace-ID"
}
