package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/advisorworks/advisor-copilot/internal/config"
	"github.com/advisorworks/advisor-copilot/internal/core/ports"
	"github.com/advisorworks/advisor-copilot/internal/core/usecase"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/chunking"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/llm/openai"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/queue/nats"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/repository/postgres"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/rerank/cohere"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/resilience"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/storage/localfs"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/tokenizer/tiktoken"
	"github.com/advisorworks/advisor-copilot/internal/infrastructure/vector/qdrant"
	"github.com/advisorworks/advisor-copilot/internal/observability/metrics"
)

// App holds every wired component shared by the api and worker binaries.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	Audit     ports.AuditReader

	Ingestor  ports.DocumentIngestor
	Processor *usecase.Processor
	Workflow  ports.QueryWorkflow

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	documents := postgres.NewDocumentRepository(db)
	conversations := postgres.NewConversationRepository(db)
	audit := postgres.NewAuditRepository(db)
	for _, ensure := range []func(context.Context) error{
		documents.EnsureSchema,
		conversations.EnsureSchema,
		audit.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, logger, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	generatorClient := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, executor)
	routerClient := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIRouterModel, cfg.OpenAIEmbedModel, executor)
	embedder := openai.NewEmbedder(generatorClient, cfg.EmbedBatchSize)
	generator := openai.NewChat(generatorClient)
	intentRouter := openai.NewChat(routerClient)

	var rerankModel ports.RerankModel
	if cfg.CohereAPIKey != "" {
		rerankModel = cohere.New(cfg.CohereBaseURL, cfg.CohereAPIKey, cfg.CohereRerankModel, executor)
	} else {
		logger.Warn("no rerank provider configured, using retrieval-score order")
	}

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	tokenizer, err := tiktoken.New("")
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	chunker := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, tokenizer)

	retriever := usecase.NewRetriever(embedder, vectorDB, cfg.RetrievalTopK)
	reranker := usecase.NewReranker(rerankModel, logger)

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	workerMetrics := metrics.NewWorkerMetrics("worker")

	ingestor := usecase.NewIngestor(documents, storage, queue, logger)
	processor := usecase.NewProcessor(documents, storage, chunker, embedder, vectorDB, logger).
		WithMetrics(workerMetrics.ProcessorRecorder("worker"))
	workflow := usecase.NewOrchestrator(
		intentRouter,
		generator,
		retriever,
		reranker,
		conversations,
		audit,
		logger,
		cfg.RerankTopK,
	).WithMetrics(httpMetrics.WorkflowRecorder("api"))

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Documents: documents,
		Audit:     audit,

		Ingestor:  ingestor,
		Processor: processor,
		Workflow:  workflow,

		HTTPMetrics:   httpMetrics,
		WorkerMetrics: workerMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
