// Package logger provides a thin slog wrapper shared by the supervisor,
// every pump session, and the broker adapter.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so the rest of the codebase can depend on a
// concrete type instead of the interface-shaped slog.Handler plumbing.
type Logger struct {
	*slog.Logger
}

// Config controls level, format, and destination.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text", "json"
	Output string // "stdout", "file"
	File   string // path, only used when Output == "file"
}

var global *Logger

// New builds a Logger from config. The first Logger built in a process
// becomes the global logger unless SetGlobal is called explicitly.
func New(config Config) *Logger {
	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	writer := os.Stdout
	if config.Output == "file" && config.File != "" {
		if f, err := os.OpenFile(config.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			writer = f
		}
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	l := &Logger{Logger: slog.New(handler)}
	if global == nil {
		global = l
	}
	return l
}

// Global returns the process-wide logger, building a sane default (info,
// text, stdout) the first time it's called with nothing set up.
func Global() *Logger {
	if global == nil {
		return New(Config{Level: "info", Format: "text"})
	}
	return global
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	global = l
}

// ForPump returns a logger scoped to one pump id, for sessions and the
// broker adapter to attach to every log line they emit about that device.
func ForPump(l *Logger, pumpID string) *slog.Logger {
	if l == nil {
		l = Global()
	}
	return l.Logger.With("pump_id", pumpID)
}
