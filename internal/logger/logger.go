package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/lmittmann/tint"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config - настройки вывода
type Config struct {
	// Writer - куда писать логи. По умолчанию os.Stdout.
	Writer io.Writer
	Level  Level
	// JSON - машинный формат. Иначе текстовый.
	JSON bool
	// Color - цветной вывод через tint (только для текстового формата)
	Color     bool
	AddSource bool
	AppName   string
}

type ctxKey struct{}

var (
	level = new(slog.LevelVar)
	base  atomic.Pointer[slog.Logger]
)

func init() {
	Setup(Config{Level: LevelInfo})
}

// Setup пересоздает глобальный логгер
func Setup(cfg Config) {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	level.Set(cfg.Level)

	var handler slog.Handler
	switch {
	case cfg.JSON:
		handler = slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	case cfg.Color:
		handler = tint.NewHandler(cfg.Writer, &tint.Options{
			Level:      level,
			AddSource:  cfg.AddSource,
			TimeFormat: "2006-01-02 15:04:05",
		})
	default:
		handler = slog.NewTextHandler(cfg.Writer, &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource})
	}

	l := slog.New(handler)
	if cfg.AppName != "" {
		l = l.With("app", cfg.AppName)
	}
	base.Store(l)
}

func SetLevel(l Level) {
	level.Set(l)
}

// ParseLevel понимает debug/info/warn/error, остальное - info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// WithContext кладет в контекст логгер с дополнительными полями
func WithContext(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, FromContext(ctx).With(args...))
}

// FromContext возвращает логгер запроса или глобальный
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return base.Load()
}

func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

// Error пишет сообщение с полем error, если err != nil
func Error(ctx context.Context, err error, msg string, args ...any) {
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	FromContext(ctx).ErrorContext(ctx, msg, args...)
}
