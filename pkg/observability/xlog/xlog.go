// Package xlog 提供 gatekit 内部使用的结构化日志接口。
//
// 基于标准库 log/slog，接口保持最小化：各子包通过 Option 注入 Logger，
// 未注入时使用 Nop（静默）。日志失败不扩散到业务调用链。
package xlog

import (
	"context"
	"log/slog"
	"time"
)

// Logger 结构化日志接口。
// 所有方法并发安全，ctx 用于透传追踪信息。
type Logger interface {
	// Debug 记录 Debug 级别日志
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)

	// Info 记录 Info 级别日志
	Info(ctx context.Context, msg string, attrs ...slog.Attr)

	// Warn 记录 Warn 级别日志
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)

	// Error 记录 Error 级别日志
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// With 返回带额外属性的派生 Logger
	With(attrs ...slog.Attr) Logger
}

// 编译时接口检查
var (
	_ Logger = (*slogLogger)(nil)
	_ Logger = nopLogger{}
)

// slogLogger 基于 slog.Handler 的 Logger 实现。
type slogLogger struct {
	handler slog.Handler
}

// New 基于 slog.Handler 创建 Logger。
// handler 为 nil 时回退到 slog.Default 的 handler。
func New(handler slog.Handler) Logger {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &slogLogger{handler: handler}
}

// Default 返回使用进程默认 slog handler 的 Logger。
func Default() Logger {
	return &slogLogger{handler: slog.Default().Handler()}
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	if !l.handler.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	// Handler 错误不回传：日志子系统遵循"失败不扩散"原则。
	_ = l.handler.Handle(ctx, r)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

func (l *slogLogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelInfo, msg, attrs)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelWarn, msg, attrs)
}

func (l *slogLogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelError, msg, attrs)
}

func (l *slogLogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return &slogLogger{handler: l.handler.WithAttrs(attrs)}
}

// nopLogger 丢弃所有日志。
type nopLogger struct{}

// Nop 返回丢弃所有日志的 Logger，用于测试或显式静默。
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...slog.Attr) {}
func (nopLogger) Info(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Warn(context.Context, string, ...slog.Attr)  {}
func (nopLogger) Error(context.Context, string, ...slog.Attr) {}
func (nopLogger) With(...slog.Attr) Logger                    { return nopLogger{} }
