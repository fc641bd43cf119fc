// Package logging is the kernel's structured logging layer, built on
// log/slog. Subsystems log through the swappable process-wide default;
// request-scoped loggers travel in a context.Context. Attribute
// constructors (Pid, Task, Handle, Syscall, Path, Operation) keep field
// names consistent across subsystems so trace output stays greppable.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type ctxKey struct{}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// Format selects the handler: "json" or anything else for text.
	Format string
	// Output defaults to stderr when nil.
	Output io.Writer
	// AddSource attaches source file positions to every record.
	AddSource bool
}

// NewLogger builds a logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// SetDefault swaps the process-wide default logger.
func SetDefault(logger *slog.Logger) { defaultLogger.Store(logger) }

// Default returns the process-wide default logger.
func Default() *slog.Logger { return defaultLogger.Load() }

// ParseLevel maps a level name to its slog.Level; unknown names fall
// back to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Attribute constructors for the field names shared across subsystems.

// Pid tags a record with the acting process id.
func Pid(pid int) slog.Attr { return slog.Int64("pid", int64(pid)) }

// Task tags a record with a scheduler task id.
func Task(id uint64) slog.Attr { return slog.Uint64("task_id", id) }

// Handle tags a record with an object-table handle.
func Handle(h uint64) slog.Attr { return slog.Uint64("handle", h) }

// Syscall tags a record with the syscall being dispatched.
func Syscall(name string) slog.Attr { return slog.String("syscall", name) }

// Path tags a record with a VFS path.
func Path(p string) slog.Attr { return slog.String("path", p) }

// Operation tags a record with a subsystem operation name.
func Operation(op string) slog.Attr { return slog.String("operation", op) }

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// Info logs at Info level on the default logger.
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at Warn level on the default logger.
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at Error level on the default logger.
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// Debug logs at Debug level on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
