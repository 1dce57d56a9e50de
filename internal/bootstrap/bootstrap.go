package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayos/knowledge-core/internal/config"
	"github.com/relayos/knowledge-core/internal/core/ports"
	"github.com/relayos/knowledge-core/internal/core/safety"
	"github.com/relayos/knowledge-core/internal/core/usecase"
	"github.com/relayos/knowledge-core/internal/infrastructure/audit"
	"github.com/relayos/knowledge-core/internal/infrastructure/cache/querycache"
	"github.com/relayos/knowledge-core/internal/infrastructure/chunking"
	"github.com/relayos/knowledge-core/internal/infrastructure/llm/ollama"
	"github.com/relayos/knowledge-core/internal/infrastructure/llm/openai"
	"github.com/relayos/knowledge-core/internal/infrastructure/queue/nats"
	"github.com/relayos/knowledge-core/internal/infrastructure/repository/postgres"
	"github.com/relayos/knowledge-core/internal/infrastructure/resilience"
	"github.com/relayos/knowledge-core/internal/infrastructure/vector/pgvector"
	"github.com/relayos/knowledge-core/internal/infrastructure/vector/qdrant"
	"github.com/relayos/knowledge-core/internal/observability/metrics"
)

const auditDrainTimeout = 5 * time.Second

// chunkIndex is what a vector backend must provide: owner-scoped search
// plus atomic replacement of a document's chunks.
type chunkIndex interface {
	ports.VectorIndex
	ports.ChunkStore
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Metrics       *metrics.CoreMetrics
	WorkerMetrics *metrics.WorkerMetrics

	Queue     *nats.Queue
	Documents ports.DocumentRepository
	Ingestor  ports.DocumentIngestor
	Searcher  ports.Searcher
	Responder ports.Responder

	audit   *audit.Dispatcher
	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := config.LoadGuardrailPolicy(cfg.GuardrailPolicyFile)
	if err != nil {
		return nil, err
	}
	extraPII, err := config.CompileExtraPII(policy)
	if err != nil {
		return nil, err
	}

	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	executor := resilience.NewExecutorWithLogger(resilienceConfig(cfg), logger)

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{
		MaxOpenConns:    cfg.PostgresMaxOpenConns,
		MaxIdleConns:    cfg.PostgresMaxIdleConns,
		ConnMaxLifetime: cfg.PostgresConnMaxLifetime,
	})
	if err != nil {
		return app, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return app, fmt.Errorf("ensure document schema: %w", err)
	}
	app.Documents = repo

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return app, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	app.Metrics = metrics.NewCoreMetrics(cfg.ServiceName)
	app.WorkerMetrics = metrics.NewWorkerMetrics(cfg.ServiceName, app.Metrics.Registry())

	writers, err := auditWriters(ctx, cfg, db, queue, executor, logger)
	if err != nil {
		return app, err
	}
	app.audit = audit.NewDispatcher(writers, audit.Options{WriteTimeout: cfg.AuditWriteTimeout, Logger: logger})

	completer, embedder, err := newProviders(cfg, executor)
	if err != nil {
		return app, err
	}
	index, err := newChunkIndex(ctx, cfg, db, executor)
	if err != nil {
		return app, err
	}

	counter, err := chunking.NewTokenCounter(cfg.ChunkTokenCounter)
	if err != nil {
		return app, fmt.Errorf("init token counter: %w", err)
	}

	cache := querycache.New(cfg.QueryCacheSize, cfg.QueryCacheTTL)
	queries := usecase.NewQueryProcessor(completer, cache, app.Metrics, logger)
	retrieval := usecase.NewRetrievalUseCase(embedder, index, queries, completer, app.audit, app.Metrics, logger, retrievalConfig(cfg))
	guard := usecase.NewGuardrailUseCase(completer, safety.NewScrubber(extraPII...), app.audit, app.Metrics, logger, policy, usecase.GuardrailConfig{
		ModelCheckMinChars: cfg.GuardrailModelMinChars,
		PreviewRunes:       cfg.GuardrailPreviewRunes,
		ModelChecks:        cfg.GuardrailModelChecks,
	})

	app.Searcher = retrieval
	app.Responder = usecase.NewRespondUseCase(guard, retrieval, completer, guard, policy, logger)
	app.Ingestor = usecase.NewIngestDocumentUseCase(
		repo, index, queue, chunking.NewChunker(counter), embedder,
		app.audit, app.Metrics, cfg.ChunkingConfig(), cfg.IngestEmbedBatchSize,
	)

	logger.Info("bootstrap_complete",
		"llm_provider", cfg.LLMProvider,
		"vector_backend", cfg.VectorBackend,
		"audit_writers", len(writers),
	)
	return app, nil
}

// Close drains pending audit writes before tearing down connections.
func (a *App) Close() {
	if a.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		if err := a.audit.Close(ctx); err != nil {
			a.Logger.Warn("audit_drain_incomplete", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newProviders(cfg config.Config, executor *resilience.Executor) (ports.Completer, ports.Embedder, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		client, err := openai.New(cfg.OpenAIAPIKey, openai.Options{
			BaseURL:            cfg.OpenAIBaseURL,
			ChatModel:          cfg.OpenAIChatModel,
			EmbeddingModel:     cfg.OpenAIEmbeddingModel,
			EmbeddingDimension: cfg.EmbeddingDimension,
			Timeout:            cfg.OpenAITimeout,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
			Timeout:            cfg.OllamaTimeout,
			ResilienceExecutor: executor,
		})
		return ollama.NewCompleter(client), ollama.NewEmbedder(client), nil
	}
}

func newChunkIndex(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (chunkIndex, error) {
	switch cfg.VectorBackend {
	case config.BackendPgvector:
		store := pgvector.NewStore(db, cfg.EmbeddingDimension, cfg.PgvectorLanguage)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return store, nil
	default:
		return qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
			ResilienceExecutor: executor,
		}), nil
	}
}

func auditWriters(
	ctx context.Context,
	cfg config.Config,
	db *sql.DB,
	queue *nats.Queue,
	executor *resilience.Executor,
	logger *slog.Logger,
) ([]audit.Writer, error) {
	var writers []audit.Writer
	if cfg.AuditPostgresEnabled {
		repo := postgres.NewAuditRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure audit schema: %w", err)
		}
		writers = append(writers, audit.Writer{Name: "postgres", Writer: repo})
	}
	if cfg.AuditNATSEnabled {
		writers = append(writers, audit.Writer{
			Name:   "nats",
			Writer: nats.NewAuditPublisher(queue.Conn(), cfg.NATSAuditSubject, executor),
		})
	}
	if cfg.AuditLogEnabled {
		writers = append(writers, audit.Writer{Name: "log", Writer: audit.NewLogWriter(logger)})
	}
	return writers, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	out.RateLimitPerSecond = cfg.ResilienceRateLimitPerSecond
	out.RateLimitBurst = cfg.ResilienceRateLimitBurst
	return out
}

func retrievalConfig(cfg config.Config) usecase.RetrievalConfig {
	out := usecase.DefaultRetrievalConfig()
	out.DefaultLimit = cfg.RAGTopK
	out.SimilarityThreshold = cfg.RAGSimilarityThreshold
	out.DocTypeBoost = cfg.RAGDocTypeBoost
	out.RecencyBoost = cfg.RAGRecencyBoost
	out.RecencyWindow = cfg.RAGRecencyWindow
	out.RRFK = cfg.RAGFusionRRFK
	out.MaxHybridCandidates = cfg.RAGHybridCandidates
	out.RerankEnabled = cfg.RAGRerankEnabled
	out.RerankMinCandidates = cfg.RAGRerankMinCandidates
	return out
}
