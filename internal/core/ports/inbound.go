package ports

import (
	"context"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

// DocumentChunker splits raw document text into context-wrapped chunks.
type DocumentChunker interface {
	Chunk(content, title string, cfg domain.ChunkingConfig) []domain.Chunk
}

// Searcher is the inbound contract for retrieval. It never fails; provider
// errors surface as a degraded response.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) domain.SearchResponse
	HybridSearch(ctx context.Context, req domain.SearchRequest) domain.SearchResponse
}

type QueryRewriter interface {
	ProcessQuery(ctx context.Context, query string) domain.ProcessedQuery
}

type InputGuard interface {
	ProcessInput(ctx context.Context, text, ownerID, conversationID string) domain.InputGuardResult
}

type OutputGuard interface {
	ProcessOutput(ctx context.Context, text, ownerID, conversationID string) domain.OutputGuardResult
}

// DocumentIngestor is the inbound contract for document ingestion.
type DocumentIngestor interface {
	Submit(ctx context.Context, doc domain.Document) (*domain.Document, error)
	ProcessByID(ctx context.Context, documentID string) error
}

// Responder answers a user message with guarded, grounded generation.
type Responder interface {
	Respond(ctx context.Context, req domain.SearchRequest) (*domain.Answer, error)
}
