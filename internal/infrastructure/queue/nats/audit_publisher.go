package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/infrastructure/resilience"
)

// AuditPublisher streams audit events as JSON so downstream consumers can
// alert on blocked requests without polling the audit table.
type AuditPublisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func NewAuditPublisher(conn *nats.Conn, subject string, executor *resilience.Executor) *AuditPublisher {
	return &AuditPublisher{conn: conn, subject: subject, executor: executor}
}

func (p *AuditPublisher) WriteAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return publish(ctx, p.conn, p.executor, p.subject+"."+event.EventType, payload)
}
