package domain

import "time"

const (
	AuditInjectionBlocked      = "injection_blocked"
	AuditPIIDetected           = "pii_detected"
	AuditOutputInvalid         = "output_invalid"
	AuditGuardrailCheckFailed  = "guardrail_check_failed"
	AuditSearchError           = "search_error"
	AuditRewriteError          = "rewrite_error"
	AuditRerankFallback        = "rerank_fallback"
	AuditDocumentIngestFailed  = "document_ingest_failed"
	AuditDocumentIngestSuccess = "document_ingested"
)

// AuditEvent payloads hold previews only, never full user text.
type AuditEvent struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	EventType      string         `json:"event_type"`
	Payload        map[string]any `json:"payload,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
