// Package logger is the process-wide structured logger. Call sites pass a
// message followed by alternating keys and values.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Configure replaces the global logger. Unknown levels fall back to info,
// unknown formats to text.
func Configure(level, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	current.Store(slog.New(h))
}

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

func Debug(msg string, kv ...any) { current.Load().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { current.Load().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { current.Load().Warn(msg, kv...) }
func Error(msg string, kv ...any) { current.Load().Error(msg, kv...) }
