package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/property-vault/internal/config"
	"github.com/kirillkom/property-vault/internal/core/ports"
	"github.com/kirillkom/property-vault/internal/core/usecase"
	"github.com/kirillkom/property-vault/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/property-vault/internal/infrastructure/extractor/remote"
	extractorrouter "github.com/kirillkom/property-vault/internal/infrastructure/extractor/router"
	"github.com/kirillkom/property-vault/internal/infrastructure/extractor/simulated"
	"github.com/kirillkom/property-vault/internal/infrastructure/parser/grant"
	"github.com/kirillkom/property-vault/internal/infrastructure/queue/inmemory"
	natsqueue "github.com/kirillkom/property-vault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/property-vault/internal/infrastructure/repository/memory"
	"github.com/kirillkom/property-vault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/property-vault/internal/infrastructure/resilience"
	"github.com/kirillkom/property-vault/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/property-vault/internal/observability/metrics"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueInMemory = "inmemory"
	QueueNATS     = "nats"

	ExtractorSimulated = "simulated"
	ExtractorPDF       = "pdf"
	ExtractorRemote    = "remote"
)

type App struct {
	Config config.Config

	Store   ports.DocumentStore
	Storage ports.ObjectStorage
	Queue   ports.TaskQueue

	IngestUC  *usecase.IngestDocumentUseCase
	ProcessUC ports.DocumentProcessor
	QueryUC   ports.DocumentReader
	ReaperUC  *usecase.ReapStaleUseCase

	WorkerMetrics *metrics.WorkerMetrics

	closers []func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	if err := checkDeployment(cfg); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}

	app.WorkerMetrics = metrics.NewWorkerMetrics(service)
	executor := resilience.NewExecutor(resilience.VaultConfig()).WithObserver(app.WorkerMetrics)

	store, err := app.openStore(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	app.Storage = storage

	queue, err := app.openQueue(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queue

	extractor, err := NewExtractor(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.IngestUC = usecase.NewIngestDocumentUseCase(store, storage, queue, usecase.UploadPolicy{
		MaxBytes:         cfg.MaxUploadBytes,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	})
	app.ProcessUC = usecase.NewProcessDocumentUseCase(store, storage, extractor, grant.New(), usecase.ProcessOptions{
		ExtractionTimeout: cfg.ExtractionTimeout,
		StoreTimeout:      cfg.StoreTimeout,
		Observer:          app.WorkerMetrics,
		Runner:            resilience.NewRunner(executor, resilience.ClassifyStoreError),
	})
	app.QueryUC = usecase.NewDocumentQueryUseCase(store)
	app.ReaperUC = usecase.NewReapStaleUseCase(store, cfg.ReaperStaleAfter).WithObserver(app.WorkerMetrics)

	slog.Info("app_initialized",
		"store_driver", cfg.StoreDriver,
		"queue_driver", cfg.QueueDriver,
		"extractor", cfg.Extractor,
		"storage_path", cfg.StoragePath,
	)
	return app, nil
}

// InProcessWorkers reports whether tasks must be consumed inside the API
// process because the queue does not leave it.
func (a *App) InProcessWorkers() bool {
	return a.Config.QueueDriver == QueueInMemory
}

// HandleTask adapts queue deliveries to the document processor.
func (a *App) HandleTask(ctx context.Context, task ports.Task) error {
	if !task.EnqueuedAt.IsZero() {
		slog.Debug("task_received",
			"document_id", task.DocumentID,
			"request_id", task.RequestID,
			"queue_lag_ms", time.Since(task.EnqueuedAt).Milliseconds(),
		)
	}
	return a.ProcessUC.ProcessByID(usecase.WithRequestID(ctx, task.RequestID), task.DocumentID)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// checkDeployment rejects driver combinations that start but can never
// process a document: with a broker the API and the workers run in separate
// processes and need a store they both see.
func checkDeployment(cfg config.Config) error {
	if cfg.QueueDriver == QueueNATS && (cfg.StoreDriver == "" || cfg.StoreDriver == StoreMemory) {
		return fmt.Errorf("queue driver %q requires a shared store, got store driver %q", QueueNATS, StoreMemory)
	}
	return nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (ports.DocumentStore, error) {
	switch cfg.StoreDriver {
	case "", StoreMemory:
		return memory.NewDocumentStore(), nil
	case StorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := migrateWithTimeout(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewDocumentRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func migrateWithTimeout(ctx context.Context, db *sql.DB) error {
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return postgres.Migrate(migrateCtx, db)
}

func (a *App) openQueue(cfg config.Config, executor *resilience.Executor) (ports.TaskQueue, error) {
	switch cfg.QueueDriver {
	case "", QueueInMemory:
		return inmemory.New(cfg.QueueBuffer, cfg.WorkerConcurrency), nil
	case QueueNATS:
		queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			Workers:            cfg.WorkerConcurrency,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.closers = append(a.closers, queue.Close)
		return queue, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}
}

// NewExtractor builds the text extractor selected by EXTRACTOR.
func NewExtractor(cfg config.Config, executor *resilience.Executor) (ports.TextExtractor, error) {
	fallback := simulated.New(cfg.SimulatedOCRDelay)
	switch cfg.Extractor {
	case "", ExtractorSimulated:
		return fallback, nil
	case ExtractorPDF:
		return extractorrouter.New(fallback).Handle("application/pdf", pdftext.New()), nil
	case ExtractorRemote:
		if cfg.OCRServiceURL == "" {
			return nil, fmt.Errorf("extractor %q requires OCR_SERVICE_URL", ExtractorRemote)
		}
		return remote.New(cfg.OCRServiceURL, executor), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}
