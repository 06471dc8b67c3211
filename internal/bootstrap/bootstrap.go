// Package bootstrap wires configuration into the object graph shared
// by cmd/api and cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"questmine/internal/config"
	"questmine/internal/core/ports"
	"questmine/internal/core/usecase"
	"questmine/internal/infrastructure/backendapi"
	"questmine/internal/infrastructure/export/excel"
	"questmine/internal/infrastructure/extractor/papertext"
	journalpg "questmine/internal/infrastructure/journal/postgres"
	oracleopenai "questmine/internal/infrastructure/oracle/openai"
	natsqueue "questmine/internal/infrastructure/queue/nats"
	"questmine/internal/infrastructure/resilience"
	"questmine/internal/infrastructure/storage/localfs"
	"questmine/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Backend   *backendapi.Client
	Queue     *natsqueue.Queue
	Journal   ports.RunJournal
	Spool     ports.UploadSpool
	Extractor ports.TextExtractor
	Exporter  *excel.Writer

	Contexts     *usecase.ContextSyncUseCase
	Taxonomy     *usecase.TaxonomyUseCase
	Trigger      *usecase.BatchTriggerUseCase
	Orchestrator *usecase.ExtractionOrchestrator
	Sessions     *usecase.SessionRegistry

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	backend := backendapi.New(cfg.BackendURL, executor)

	db, err := journalpg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	journal := journalpg.NewRunJournal(db)
	if err := journal.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	spool, err := localfs.New(cfg.SpoolPath)
	if err != nil {
		return nil, fmt.Errorf("init upload spool: %w", err)
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init batch queue: %w", err)
	}

	oracle, err := oracleopenai.New(oracleopenai.Config{
		APIKey:  cfg.OracleAPIKey,
		Model:   cfg.OracleModel,
		BaseURL: cfg.OracleBaseURL,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init oracle: %w", err)
	}

	contexts := usecase.NewContextSyncUseCase(backend, cfg.MaxScrapePages)
	taxonomy := usecase.NewTaxonomyUseCase(backend, oracle, time.Duration(cfg.TaxonomyCacheTTLMin)*time.Minute)
	orchestrator := usecase.NewExtractionOrchestrator(
		contexts,
		taxonomy,
		oracle,
		backend,
		journal,
		cfg.DefaultSubject,
		logger,
		nil,
	)
	trigger := usecase.NewBatchTriggerUseCase(contexts, backend, queue, orchestrator, logger)
	sessions := usecase.NewSessionRegistry(
		time.Duration(cfg.SearchDebounceMS)*time.Millisecond,
		cfg.PageSize,
		time.Duration(cfg.SessionTTLMin)*time.Minute,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Backend:   backend,
		Queue:     queue,
		Journal:   journal,
		Spool:     spool,
		Extractor: papertext.NewExtractor(),
		Exporter:  excel.NewWriter(),

		Contexts:     contexts,
		Taxonomy:     taxonomy,
		Trigger:      trigger,
		Orchestrator: orchestrator,
		Sessions:     sessions,

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
