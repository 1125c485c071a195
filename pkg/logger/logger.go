package logger

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"inboxwhats/pkg/trace"
)

var Log *zap.Logger

// NewLogger 创建全局 logger，level 为空或非法时使用 info
func NewLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

// MaskAddress hides the middle digits of a chat address so logs never carry a full phone number.
func MaskAddress(addr string) string {
	prefix := ""
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		prefix, addr = addr[:i+1], addr[i+1:]
	}
	if len(addr) <= 8 {
		return prefix + strings.Repeat("*", len(addr))
	}
	return prefix + addr[:4] + strings.Repeat("*", len(addr)-8) + addr[len(addr)-4:]
}
