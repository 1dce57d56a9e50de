package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/core/ports"
	"github.com/relayos/knowledge-core/internal/core/ranking"
	"github.com/relayos/knowledge-core/internal/core/safety"
)

const (
	searchModeVector = "vector"
	searchModeHybrid = "hybrid"

	degradedSearchError    = "search_error"
	degradedInvalidRequest = "invalid_request"
)

type RetrievalConfig struct {
	DefaultLimit        int
	SimilarityThreshold float64
	DocTypeBoost        float64
	RecencyBoost        float64
	RecencyWindow       time.Duration
	RRFK                int
	MaxHybridCandidates int
	RerankMinCandidates int
	RerankPreviewChars  int
	RerankEnabled       bool
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		DefaultLimit:        5,
		SimilarityThreshold: 0.2,
		DocTypeBoost:        0.05,
		RecencyBoost:        0.02,
		RecencyWindow:       30 * 24 * time.Hour,
		RRFK:                ranking.DefaultK,
		MaxHybridCandidates: 10,
		RerankMinCandidates: 3,
		RerankPreviewChars:  200,
		RerankEnabled:       true,
	}
}

// RetrievalUseCase runs vector and hybrid retrieval. Provider failures never
// escape: the response is marked degraded and an audit event is recorded.
type RetrievalUseCase struct {
	embedder  ports.Embedder
	index     ports.VectorIndex
	queries   ports.QueryRewriter
	completer ports.Completer
	audit     ports.AuditSink
	telemetry ports.Telemetry
	logger    *slog.Logger
	cfg       RetrievalConfig
	now       func() time.Time
}

func NewRetrievalUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	queries ports.QueryRewriter,
	completer ports.Completer,
	audit ports.AuditSink,
	telemetry ports.Telemetry,
	logger *slog.Logger,
	cfg RetrievalConfig,
) *RetrievalUseCase {
	return &RetrievalUseCase{
		embedder:  embedder,
		index:     index,
		queries:   queries,
		completer: completer,
		audit:     auditOrNoop(audit),
		telemetry: telemetryOrNoop(telemetry),
		logger:    loggerOrDefault(logger),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (uc *RetrievalUseCase) Search(ctx context.Context, req domain.SearchRequest) domain.SearchResponse {
	started := time.Now()
	limit := uc.limit(req.Limit)
	if resp, ok := uc.validate(req); !ok {
		return resp
	}

	query := uc.resolveQuery(ctx, req)
	vector, err := uc.embedder.Embed(ctx, query.RewrittenQuery)
	if err != nil {
		return uc.degrade(ctx, req, query, searchModeVector, "embed", err, started)
	}

	candidates, err := uc.index.SimilaritySearch(ctx, req.OwnerID, vector, limit, uc.cfg.SimilarityThreshold)
	if err != nil {
		return uc.degrade(ctx, req, query, searchModeVector, "similarity_search", err, started)
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, resultFromCandidate(c))
	}
	sortBySimilarity(results)
	applyDocTypeBoost(results, query.QueryType, uc.cfg.DocTypeBoost)
	results = ranking.Trim(results, limit)

	uc.telemetry.ObserveSearch(searchModeVector, false, len(results), time.Since(started).Seconds())
	return domain.SearchResponse{Results: results, Query: query}
}

func (uc *RetrievalUseCase) HybridSearch(ctx context.Context, req domain.SearchRequest) domain.SearchResponse {
	started := time.Now()
	limit := uc.limit(req.Limit)
	if resp, ok := uc.validate(req); !ok {
		return resp
	}

	query := uc.resolveQuery(ctx, req)
	vector, err := uc.embedder.Embed(ctx, query.RewrittenQuery)
	if err != nil {
		return uc.degrade(ctx, req, query, searchModeHybrid, "embed", err, started)
	}

	candidateLimit := 2 * limit
	if uc.cfg.MaxHybridCandidates > 0 && candidateLimit > uc.cfg.MaxHybridCandidates {
		candidateLimit = uc.cfg.MaxHybridCandidates
	}
	candidates, err := uc.index.HybridSearch(ctx, req.OwnerID, query.RewrittenQuery, vector, candidateLimit, uc.cfg.RRFK)
	if err != nil {
		return uc.degrade(ctx, req, query, searchModeHybrid, "hybrid_search", err, started)
	}

	results := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, resultFromHybrid(c))
	}
	sortBySimilarity(results)
	applyDocTypeBoost(results, query.QueryType, uc.cfg.DocTypeBoost)
	applyRecencyBoost(results, uc.now(), uc.cfg.RecencyWindow, uc.cfg.RecencyBoost)

	if uc.cfg.RerankEnabled && len(results) >= uc.cfg.RerankMinCandidates {
		results = uc.rerankResults(ctx, req, query.RewrittenQuery, results, limit)
	} else {
		results = ranking.Trim(results, limit)
	}

	uc.telemetry.ObserveSearch(searchModeHybrid, false, len(results), time.Since(started).Seconds())
	return domain.SearchResponse{Results: results, Query: query}
}

func (uc *RetrievalUseCase) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	if uc.cfg.DefaultLimit > 0 {
		return uc.cfg.DefaultLimit
	}
	return 5
}

func (uc *RetrievalUseCase) validate(req domain.SearchRequest) (domain.SearchResponse, bool) {
	if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.Query) == "" {
		uc.logger.Warn("search_rejected", "reason", degradedInvalidRequest, "owner_id", req.OwnerID)
		return domain.SearchResponse{
			Results:        []domain.SearchResult{},
			Query:          domain.ProcessedQuery{OriginalQuery: req.Query, RewrittenQuery: req.Query, QueryType: domain.QueryGeneral},
			Degraded:       true,
			DegradedReason: degradedInvalidRequest,
		}, false
	}
	return domain.SearchResponse{}, true
}

func (uc *RetrievalUseCase) resolveQuery(ctx context.Context, req domain.SearchRequest) domain.ProcessedQuery {
	if req.SkipQueryProcessing || uc.queries == nil {
		return domain.ProcessedQuery{
			OriginalQuery:  req.Query,
			RewrittenQuery: req.Query,
			QueryType:      domain.QueryGeneral,
			Confidence:     1.0,
			Skipped:        true,
		}
	}
	q := uc.queries.ProcessQuery(ctx, req.Query)
	if q.RewriteFailed {
		uc.logger.Warn("query_rewrite_degraded",
			"owner_id", req.OwnerID,
			"correlation_id", req.CorrelationID,
		)
		uc.audit.Log(ctx, domain.AuditEvent{
			OwnerID:        req.OwnerID,
			EventType:      domain.AuditRewriteError,
			Payload:        map[string]any{"stage": "rewrite", "query_type": string(q.QueryType)},
			ConversationID: req.ConversationID,
			CorrelationID:  req.CorrelationID,
		})
	}
	return q
}

func (uc *RetrievalUseCase) degrade(
	ctx context.Context,
	req domain.SearchRequest,
	query domain.ProcessedQuery,
	mode, stage string,
	err error,
	started time.Time,
) domain.SearchResponse {
	uc.logger.Warn("search_degraded",
		"mode", mode,
		"stage", stage,
		"owner_id", req.OwnerID,
		"correlation_id", req.CorrelationID,
		"error", err,
	)
	uc.audit.Log(ctx, domain.AuditEvent{
		OwnerID:   req.OwnerID,
		EventType: domain.AuditSearchError,
		Payload: map[string]any{
			"mode":      mode,
			"stage":     stage,
			"temporary": domain.IsKind(err, domain.ErrTemporary),
			"error":     safety.Truncate(err.Error(), 200),
		},
		ConversationID: req.ConversationID,
		CorrelationID:  req.CorrelationID,
	})
	uc.telemetry.ObserveSearch(mode, true, 0, time.Since(started).Seconds())
	return domain.SearchResponse{
		Results:        []domain.SearchResult{},
		Query:          query,
		Degraded:       true,
		DegradedReason: degradedSearchError,
	}
}

func resultFromCandidate(c domain.IndexCandidate) domain.SearchResult {
	return domain.SearchResult{
		ChunkID:    c.ChunkID,
		DocumentID: c.DocumentID,
		Content:    c.Content,
		Similarity: c.Similarity,
		Metadata: domain.ResultMetadata{
			Title:              c.Title,
			Section:            c.Section,
			DocType:            c.DocType,
			ChunkIndex:         c.ChunkIndex,
			SemanticSimilarity: c.Similarity,
			DocCreatedAt:       c.DocCreatedAt,
			DocUpdatedAt:       c.DocUpdatedAt,
		},
	}
}

func resultFromHybrid(c domain.HybridCandidate) domain.SearchResult {
	r := resultFromCandidate(c.IndexCandidate)
	r.Similarity = c.RRFScore
	r.Metadata.SemanticSimilarity = c.SemanticSimilarity
	r.Metadata.KeywordRank = c.KeywordRank
	r.Metadata.RRFScore = c.RRFScore
	return r
}
