package audit

import (
	"context"
	"log/slog"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// LogWriter mirrors audit events into the structured log stream.
type LogWriter struct {
	logger *slog.Logger
}

func NewLogWriter(logger *slog.Logger) *LogWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWriter{logger: logger}
}

func (w *LogWriter) WriteAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	attrs := []any{
		"audit_id", event.ID,
		"event_type", event.EventType,
		"owner_id", event.OwnerID,
	}
	if event.ConversationID != "" {
		attrs = append(attrs, "conversation_id", event.ConversationID)
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", event.CorrelationID)
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}
	w.logger.InfoContext(ctx, "audit_event", attrs...)
	return nil
}
