// Package logger provides structured logging for the chatter bot
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Version is stamped into every record
var Version = "dev"

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps slog.Logger with bot-specific helpers
type Logger struct {
	*slog.Logger
	component string

	// closer is the log file New opened, if any
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	Level     string
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or file path
	Component string

	// Writer overrides Output when set
	Writer io.Writer
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new logger instance
func New(cfg Config) (*Logger, error) {
	writer := cfg.Writer
	var closer io.Closer
	if writer == nil {
		output := cfg.Output
		if output == "" {
			output = "stdout"
		}

		switch output {
		case "stdout":
			writer = os.Stdout
		case "stderr":
			writer = os.Stderr
		default:
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			writer = file
			closer = file
		}
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler).With(
		"service", "chatbot",
		"component", cfg.Component,
		"version", Version,
	)

	return &Logger{
		Logger:    logger,
		component: cfg.Component,
		closer:    closer,
	}, nil
}

// Close releases the log file opened by New. Scoped loggers derived from l
// share its file and must not be used afterwards.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

// SetGlobal replaces the global logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the global logger instance
func Global() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	// Fallback when SetGlobal was never called
	l, _ = New(Config{
		Level:     "info",
		Format:    "text",
		Output:    "stderr",
		Component: "bot",
	})
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	l, _ := New(Config{Writer: io.Discard})
	return l
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a new logger with the component name set
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

// WithGuild returns a new logger scoped to a guild
func (l *Logger) WithGuild(guildID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("guild_id", guildID),
		component: l.component,
	}
}

// WithUser returns a new logger scoped to a user
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("user_id", userID),
		component: l.component,
	}
}

// WithExtension returns a new logger scoped to an extension
func (l *Logger) WithExtension(id string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("extension", id),
		component: l.component,
	}
}

// AuditEvent logs an audit trail event for owner actions
func (l *Logger) AuditEvent(ctx context.Context, action string, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("action", action),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		slog.String("category", "audit"),
	}

	if _, file, line, ok := runtimeCaller(2); ok {
		baseAttrs = append(baseAttrs,
			slog.String("source_file", file),
			slog.Int("source_line", line),
		)
	}

	l.LogAttrs(ctx, slog.LevelInfo, "audit event", append(baseAttrs, attrs...)...)
}

// CommandEvent logs a completed command invocation
func (l *Logger) CommandEvent(ctx context.Context, command, userID string, elapsed time.Duration, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("command", command),
		slog.String("user_id", userID),
		slog.Duration("elapsed", elapsed),
	}
	l.LogAttrs(ctx, slog.LevelDebug, "command invoked", append(baseAttrs, attrs...)...)
}

// ErrorEvent logs an error with context
func (l *Logger) ErrorEvent(ctx context.Context, message string, err error, attrs ...slog.Attr) {
	l.errorEvent(ctx, slog.LevelError, message, err, attrs...)
}

// WarnEvent logs a handled error at warning level
func (l *Logger) WarnEvent(ctx context.Context, message string, err error, attrs ...slog.Attr) {
	l.errorEvent(ctx, slog.LevelWarn, message, err, attrs...)
}

func (l *Logger) errorEvent(ctx context.Context, level slog.Level, message string, err error, attrs ...slog.Attr) {
	var baseAttrs []slog.Attr
	if err != nil {
		baseAttrs = []slog.Attr{
			slog.String("error", err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", err)),
		}
	}
	l.LogAttrs(ctx, level, message, append(baseAttrs, attrs...)...)
}

func runtimeCaller(skip int) (pc uintptr, file string, line int, ok bool) {
	pc, file, line, ok = runtime.Caller(skip + 1)
	if ok {
		file = filepath.Base(file)
	}
	return
}
