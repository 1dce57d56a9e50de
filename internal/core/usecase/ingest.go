package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
)

const defaultEmbedBatchSize = 32

// IngestDocumentUseCase accepts documents and turns them into embedded,
// stored chunks. Each version is chunked all-or-nothing.
type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	store     ports.ChunkStore
	queue     ports.IngestQueue
	chunker   ports.DocumentChunker
	embedder  ports.Embedder
	audit     ports.AuditSink
	telemetry ports.Telemetry
	chunking  domain.ChunkingConfig
	batchSize int
	now       func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	store ports.ChunkStore,
	queue ports.IngestQueue,
	chunker ports.DocumentChunker,
	embedder ports.Embedder,
	audit ports.AuditSink,
	telemetry ports.Telemetry,
	chunking domain.ChunkingConfig,
	batchSize int,
) *IngestDocumentUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		store:     store,
		queue:     queue,
		chunker:   chunker,
		embedder:  embedder,
		audit:     auditOrNoop(audit),
		telemetry: telemetryOrNoop(telemetry),
		chunking:  chunking,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Submit stores a new document version and queues it for processing.
// Re-submitting an existing ID bumps the version.
func (uc *IngestDocumentUseCase) Submit(ctx context.Context, doc domain.Document) (*domain.Document, error) {
	if strings.TrimSpace(doc.OwnerID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("owner id is required"))
	}
	if strings.TrimSpace(doc.RawContent) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("content is empty"))
	}

	now := uc.now().UTC()
	doc.Version = 1
	doc.CreatedAt = now
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	} else {
		existing, err := uc.repo.GetByID(ctx, doc.ID)
		switch {
		case err == nil:
			if existing.OwnerID != doc.OwnerID {
				return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("document belongs to another owner"))
			}
			doc.Version = existing.Version + 1
			doc.CreatedAt = existing.CreatedAt
		case !domain.IsKind(err, domain.ErrDocumentNotFound):
			return nil, fmt.Errorf("fetch existing document: %w", err)
		}
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.DocType = strings.ToLower(strings.TrimSpace(doc.DocType))
	doc.Status = domain.StatusUploaded
	doc.Error = ""
	doc.UpdatedAt = now

	if err := uc.repo.Create(ctx, &doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishDocumentIngest(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return &doc, nil
}

func (uc *IngestDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	started := uc.now()
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, chunks, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		uc.telemetry.ObserveIngest(string(domain.StatusFailed), 0, uc.now().Sub(started).Seconds())
		if doc != nil {
			uc.audit.Log(ctx, domain.AuditEvent{
				OwnerID:   doc.OwnerID,
				EventType: domain.AuditDocumentIngestFailed,
				Payload:   map[string]any{"document_id": doc.ID, "version": doc.Version, "error": err.Error()},
			})
		}
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	uc.telemetry.ObserveIngest(string(domain.StatusReady), len(chunks), uc.now().Sub(started).Seconds())
	uc.audit.Log(ctx, domain.AuditEvent{
		OwnerID:   doc.OwnerID,
		EventType: domain.AuditDocumentIngestSuccess,
		Payload:   map[string]any{"document_id": doc.ID, "version": doc.Version, "chunks": len(chunks)},
	})
	return nil
}

func (uc *IngestDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, []domain.Chunk, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document by id: %w", err)
	}

	chunks := uc.chunker.Chunk(doc.RawContent, doc.Title, uc.chunking)
	if len(chunks) == 0 {
		return doc, nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return doc, nil, err
	}
	if err := uc.store.ReplaceChunks(ctx, doc, chunks); err != nil {
		return doc, nil, fmt.Errorf("replace chunks: %w", err)
	}
	return doc, chunks, nil
}

// embed fills Embedding for every chunk in batches of batchSize.
func (uc *IngestDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vectors, err := uc.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
			)
		}
		for i, v := range vectors {
			chunks[start+i].Embedding = v
		}
	}
	return nil
}
