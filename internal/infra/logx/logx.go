// Package logx 初始化进程级 slog。
//
// 日志永远写 stderr：非 TTY 时 stdout 只承载 JSON 汇总。
package logx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup 按 level/format 设置默认 logger（format: json|text），并返回它。
func Setup(level, format string) *slog.Logger {
	return SetupTo(os.Stderr, level, format)
}

// SetupTo 同 Setup，但写入指定 writer（测试用）。
func SetupTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}

// WithComponent 返回带 component 属性的默认 logger。
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Discard 返回丢弃一切输出的 logger。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel 解析 debug|info|warn|error；未知值按 info。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
