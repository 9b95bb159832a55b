// Package plog provides the application-wide structured logger.
// It wraps log/slog with a level dispatch that sends INFO and below to
// stdout and WARN and above to stderr, plus a NOTICE level between
// DEBUG and INFO used for per-file operation logging.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LevelNotice sits between slog's built-in DEBUG and INFO levels.
// It is used for high-volume per-entry messages (file added, file restored)
// that are useful for auditing a run but too noisy for the default level.
const LevelNotice = slog.Level(-2)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var (
	defaultLogger *slog.Logger
	levelVar      = new(slog.LevelVar)
)

// replaceLevelNames renames the custom NOTICE level in the output so it does
// not render as "INFO-2".
func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func init() {
	levelVar.Set(slog.LevelInfo)

	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevelNames,
	})
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       slog.LevelWarn,
		ReplaceAttr: replaceLevelNames,
	})

	defaultLogger = slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	})
}

// SetLevel sets the minimum level for the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a config/flag string to a slog level.
// Unknown strings fall back to INFO.
func LevelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// All levels are written to the provided writer.
func SetOutput(w io.Writer) {
	levelVar.Set(slog.LevelDebug)
	defaultLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceLevelNames,
	}))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Notice logs a per-entry operational message.
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
