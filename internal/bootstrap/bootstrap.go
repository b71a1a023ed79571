package bootstrap

import (
	"context"
	"fmt"

	"github.com/facturo/ingesta/internal/config"
	"github.com/facturo/ingesta/internal/core/ports"
	"github.com/facturo/ingesta/internal/core/usecase"
	"github.com/facturo/ingesta/internal/infrastructure/fingerprint"
	"github.com/facturo/ingesta/internal/infrastructure/matching"
	"github.com/facturo/ingesta/internal/infrastructure/queue/nats"
	"github.com/facturo/ingesta/internal/infrastructure/repository/postgres"
	"github.com/facturo/ingesta/internal/infrastructure/resilience"
	"github.com/facturo/ingesta/internal/infrastructure/routing"
	"github.com/facturo/ingesta/internal/infrastructure/storage/gcs"
	"github.com/facturo/ingesta/internal/infrastructure/storage/localfs"
	"github.com/facturo/ingesta/internal/infrastructure/watch"
	"github.com/facturo/ingesta/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue       ports.MessageQueue
	Documents   ports.DocumentRepository
	Providers   ports.ProviderRepository
	DeadLetters ports.DeadLetterRepository
	Storage     ports.ObjectStorage
	Tenants     *routing.PrefixMap
	Stability   ports.StabilityWaiter

	IngestUC   ports.FileIngestor
	ApplyUC    ports.ExtractionApplier
	ReassignUC ports.ProviderReassigner

	Metrics *metrics.Pipeline

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	providers := postgres.NewProviderRepository(db)
	deadLetters := postgres.NewDeadLetterRepository(db)

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSStoredSubject, cfg.NATSExtractedSubject)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	tenants, err := routing.LoadPrefixMap(cfg.TenantMapPath)
	if err != nil {
		return nil, fmt.Errorf("load tenant map: %w", err)
	}

	stability := watch.NewStability(cfg.StabilityPollInterval, cfg.StabilityMaxWait, true)
	scorer := matching.NewEditDistanceScorer()
	fp := fingerprint.New()

	pipelineMetrics := metrics.NewPipeline("ingesta")

	ingestUC := usecase.NewIngestFileUseCase(stability, fp, tenants, storage, documents, queue)
	resolveUC := usecase.NewResolveProviderUseCase(providers, scorer, cfg.MatchThreshold)
	applyUC := usecase.NewApplyExtractionUseCase(documents, resolveUC, cfg.MinFieldConfidence)
	applyUC.OnEstadoChange(pipelineMetrics.EstadoTransition)
	reassignUC := usecase.NewReassignProviderUseCase(documents, providers)

	return &App{
		Config: cfg,

		Queue:       queue,
		Documents:   documents,
		Providers:   providers,
		DeadLetters: deadLetters,
		Storage:     storage,
		Tenants:     tenants,
		Stability:   stability,

		IngestUC:   ingestUC,
		ApplyUC:    applyUC,
		ReassignUC: reassignUC,

		Metrics: pipelineMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required for the gcs backend")
		}
		return gcs.New(ctx, cfg.GCSBucket, resilience.NewExecutor(resilience.DefaultConfig()))
	case "local":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
