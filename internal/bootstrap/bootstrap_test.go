package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/relayos/knowledge-core/internal/config"
	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/infrastructure/vector/pgvector"
	"github.com/relayos/knowledge-core/internal/infrastructure/vector/qdrant"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Config{LLMProvider: "openai", VectorBackend: "qdrant"}
	app, err := New(context.Background(), cfg, nil)
	if app != nil {
		t.Fatalf("expected nil app on configuration error")
	}
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRetrievalConfigMapsOverrides(t *testing.T) {
	cfg := config.Config{
		RAGTopK:                7,
		RAGSimilarityThreshold: 0.3,
		RAGFusionRRFK:          40,
		RAGHybridCandidates:    12,
		RAGRecencyWindow:       7 * 24 * time.Hour,
		RAGRerankEnabled:       false,
		RAGRerankMinCandidates: 4,
	}
	got := retrievalConfig(cfg)
	if got.DefaultLimit != 7 || got.RRFK != 40 || got.MaxHybridCandidates != 12 || got.RerankEnabled || got.RerankMinCandidates != 4 {
		t.Fatalf("unexpected retrieval config: %+v", got)
	}
	if got.RerankPreviewChars != 200 {
		t.Fatalf("unset fields should keep defaults, got preview %d", got.RerankPreviewChars)
	}
}

func TestResilienceConfigMapsOverrides(t *testing.T) {
	got := resilienceConfig(config.Config{
		ResilienceRetryMaxAttempts:   5,
		ResilienceBreakerEnabled:     false,
		ResilienceRateLimitPerSecond: 2.5,
		ResilienceRateLimitBurst:     4,
	})
	if got.RetryMaxAttempts != 5 || got.BreakerEnabled || got.RateLimitPerSecond != 2.5 || got.RateLimitBurst != 4 {
		t.Fatalf("unexpected resilience config: %+v", got)
	}
	if got.BreakerFailureRatio != 0.5 {
		t.Fatalf("unset breaker ratio should keep default, got %v", got.BreakerFailureRatio)
	}
}

func TestNewProvidersSelectsBackend(t *testing.T) {
	completer, embedder, err := newProviders(config.Config{LLMProvider: config.ProviderOllama, OllamaURL: "http://localhost:11434"}, nil)
	if err != nil || completer == nil || embedder == nil {
		t.Fatalf("ollama providers: %v", err)
	}

	_, _, err = newProviders(config.Config{LLMProvider: config.ProviderOpenAI}, nil)
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("openai without key should fail with configuration error, got %v", err)
	}
}

func TestChunkIndexImplementations(t *testing.T) {
	var _ chunkIndex = (*pgvector.Store)(nil)
	var _ chunkIndex = (*qdrant.Client)(nil)
}
