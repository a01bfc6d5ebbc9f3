// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的 zerolog 实例，由 Init 初始化。
var Logger zerolog.Logger

func init() {
	// 在 Init 被调用之前也能安全使用
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 初始化全局日志器，为每条日志附加服务名。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个带有追踪信息的日志器。
// 如果 context 中存在有效的 Span，则自动附加 trace_id / span_id，
// 便于在日志系统中与 Jaeger 的追踪数据互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}
