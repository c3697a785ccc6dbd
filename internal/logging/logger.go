package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelEnvVar overrides the default log level when --log-level is not given.
const LevelEnvVar = "LAMBDASYNC_LOG_LEVEL"

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// ParseLevel maps a level name to a slog level. Unknown names map to info.
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

// Init initializes the global structured logger writing to stderr.
// An empty level falls back to LAMBDASYNC_LOG_LEVEL.
func Init(level string) {
	InitWithWriter(level, os.Stderr)
}

// InitWithWriter initializes the global logger with a custom destination.
func InitWithWriter(level string, w io.Writer) {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	mu.Lock()
	logger = slog.New(handler)
	mu.Unlock()
	slog.SetDefault(logger)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("")
		return Logger()
	}
	return l
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}
