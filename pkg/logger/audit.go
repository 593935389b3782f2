package logger

import (
	"context"
	"log/slog"
)

// AuditEventType identifies an owner action worth keeping a trail of
type AuditEventType string

const (
	ExtensionLoad   AuditEventType = "extension_load"
	ExtensionUnload AuditEventType = "extension_unload"
	ExtensionReload AuditEventType = "extension_reload"

	EvalExecuted    AuditEventType = "eval_executed"
	PresenceChanged AuditEventType = "presence_changed"
	FailureResolved AuditEventType = "failure_resolved"

	BotShutdown AuditEventType = "bot_shutdown"
	BotRestart  AuditEventType = "bot_restart"

	AccessDenied AuditEventType = "access_denied"
)

// AuditLogger records owner actions
type AuditLogger struct {
	logger *Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(baseLogger *Logger) *AuditLogger {
	return &AuditLogger{
		logger: baseLogger.WithComponent("audit"),
	}
}

// LogExtension logs an extension lifecycle action and its outcome
func (al *AuditLogger) LogExtension(ctx context.Context, event AuditEventType, actor, extension string, err error) {
	attrs := []slog.Attr{
		slog.String("actor", actor),
		slog.String("extension", extension),
		slog.Bool("ok", err == nil),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	al.logger.AuditEvent(ctx, string(event), attrs...)
}

// LogEval logs an eval invocation. Only the code size is recorded.
func (al *AuditLogger) LogEval(ctx context.Context, actor string, codeLen int, err error) {
	attrs := []slog.Attr{
		slog.String("actor", actor),
		slog.Int("code_bytes", codeLen),
		slog.Bool("ok", err == nil),
	}
	al.logger.AuditEvent(ctx, string(EvalExecuted), attrs...)
}

// LogPresence logs a presence change
func (al *AuditLogger) LogPresence(ctx context.Context, actor, activity, text string) {
	al.logger.AuditEvent(ctx, string(PresenceChanged),
		slog.String("actor", actor),
		slog.String("activity", activity),
		slog.String("text", text),
	)
}

// LogLifecycle logs shutdown and restart requests
func (al *AuditLogger) LogLifecycle(ctx context.Context, event AuditEventType, actor string) {
	al.logger.AuditEvent(ctx, string(event), slog.String("actor", actor))
}

// LogAccessDenied logs a rejected owner-only invocation
func (al *AuditLogger) LogAccessDenied(ctx context.Context, command, actor string) {
	al.logger.AuditEvent(ctx, string(AccessDenied),
		slog.String("command", command),
		slog.String("actor", actor),
	)
}

// LogEvent logs an audit event with a custom type
func (al *AuditLogger) LogEvent(ctx context.Context, event AuditEventType, attrs ...slog.Attr) {
	al.logger.AuditEvent(ctx, string(event), attrs...)
}
