package ports

import (
	"context"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
// EmbedBatch returns exactly one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer runs a single chat completion against the model provider.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.Completion, error)
}

// VectorIndex performs owner-scoped retrieval. Zero matches is an empty
// slice, not an error.
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, ownerID string, vector []float32, limit int, threshold float64) ([]domain.IndexCandidate, error)
	HybridSearch(ctx context.Context, ownerID, queryText string, vector []float32, limit, rrfK int) ([]domain.HybridCandidate, error)
}

// ChunkStore atomically swaps the chunk set of a document version.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// IngestQueue publishes/consumes ingestion events.
type IngestQueue interface {
	PublishDocumentIngest(ctx context.Context, documentID string) error
	SubscribeDocumentIngest(ctx context.Context, handler func(context.Context, string) error) error
}

// AuditSink records guardrail and degradation events. Log never fails.
type AuditSink interface {
	Log(ctx context.Context, event domain.AuditEvent)
}

// AuditWriter is a single durable destination behind an AuditSink.
type AuditWriter interface {
	WriteAuditEvent(ctx context.Context, event domain.AuditEvent) error
}

// QueryCache stores processed queries by normalized key.
type QueryCache interface {
	Get(key string) (domain.ProcessedQuery, bool)
	Set(key string, value domain.ProcessedQuery)
}

// Telemetry receives core pipeline measurements.
type Telemetry interface {
	ObserveSearch(mode string, degraded bool, results int, seconds float64)
	ObserveRerank(outcome string)
	ObserveGuardrail(stage string, action domain.GuardAction, method string)
	ObserveQueryCache(hit bool)
	ObserveIngest(status string, chunks int, seconds float64)
}
