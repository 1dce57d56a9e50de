package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

const auditSchemaLock int64 = 2026051002

// AuditRepository persists audit events; it implements ports.AuditWriter.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	return withSchemaLock(ctx, r.db, auditSchemaLock, `
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	conversation_id TEXT,
	correlation_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_owner_created ON audit_events(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
`)
}

func (r *AuditRepository) WriteAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, owner_id, event_type, payload, conversation_id, correlation_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		event.ID, event.OwnerID, event.EventType, payloadJSON,
		nullString(event.ConversationID), nullString(event.CorrelationID), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
