package utils

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 全局日志级别，配置热重载时直接修改
var LogLevel = new(slog.LevelVar)

// LogOptions 日志输出选项
type LogOptions struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
}

// SetupLogger 终端彩色输出，配置了日志文件时同时写入可轮转的文件
// 返回的 io.Closer 用于退出前关闭日志文件
func SetupLogger(opts LogOptions) io.Closer {
	SetLogLevel(opts.Level)

	handlers := []slog.Handler{
		tint.NewHandler(colorable.NewColorable(os.Stdout), &tint.Options{
			Level:      LogLevel,
			TimeFormat: time.DateTime,
		}),
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    max(opts.MaxSize, 1),
			MaxBackups: opts.MaxBackups,
			MaxAge:     14,
		}
		closer = lj
		handlers = append(handlers, slog.NewTextHandler(lj, &slog.HandlerOptions{Level: LogLevel}))
	}

	slog.SetDefault(slog.New(fanoutHandler(handlers)))
	return closer
}

// SetLogLevel 无法识别时使用 info
func SetLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		LogLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		LogLevel.Set(slog.LevelWarn)
	case "error":
		LogLevel.Set(slog.LevelError)
	default:
		LogLevel.Set(slog.LevelInfo)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanoutHandler 把同一条记录分发给多个 handler
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
