package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefault 创建输出到 stdout 的 JSON 日志记录器。
func NewDefault(level string) *slog.Logger {
	return New(os.Stdout, level, "json")
}

// NewForEnv local 环境输出便于阅读的文本日志，其他环境输出 JSON。
func NewForEnv(env, level string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return New(os.Stdout, level, "text")
	}
	return NewDefault(level)
}

// New 按级别与格式创建日志记录器。
//
// 参数:
//
//	w: 输出目标
//	level: debug / info / warn / error（无法识别时使用 info）
//	format: json / text
func New(w io.Writer, level string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel 将字符串转换为 slog.Level。
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

// Discard 返回丢弃所有输出的日志记录器，测试中使用。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
