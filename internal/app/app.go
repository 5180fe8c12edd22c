// Package app builds the service graph shared by the daemon and the CLI.
package app

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/tools-tracker/db/migrate"
	"github.com/joseph-ayodele/tools-tracker/internal/catalog"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/core"
	"github.com/joseph-ayodele/tools-tracker/internal/export"
	"github.com/joseph-ayodele/tools-tracker/internal/inference"
	"github.com/joseph-ayodele/tools-tracker/internal/jobs"
	"github.com/joseph-ayodele/tools-tracker/internal/ledger"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
	"github.com/joseph-ayodele/tools-tracker/internal/pipeline"
	"github.com/joseph-ayodele/tools-tracker/internal/repository"
)

type App struct {
	Config   *common.Config
	Logger   *slog.Logger
	Driver   *entsql.Driver
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Tools      repository.ToolRepository
	Artifacts  repository.ArtifactRepository
	Detections repository.DetectionRepository

	Catalog   *catalog.Catalog
	Ledger    *ledger.Ledger
	Machine   *jobs.Machine
	Engine    *core.Engine
	Inference *inference.Client
	Processor *pipeline.Processor
	Exporter  *export.Service
}

// New opens the database named by cfg and wires every component on top of it.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	drv, pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, common.NewAppError("DB_OPEN", "failed to open database: "+err.Error(), common.ErrUnavailable)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Driver:   drv,
		Pool:     pool,
		Registry: prometheus.NewRegistry(),
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	m, err := metrics.New(a.Registry)
	if err != nil {
		return err
	}
	a.Metrics = m

	a.Tools = repository.NewToolRepository(a.Driver, a.Logger)
	a.Artifacts = repository.NewArtifactRepository(a.Driver, a.Logger)
	a.Detections = repository.NewDetectionRepository(a.Driver, a.Logger)

	a.Catalog = catalog.New(a.Tools, a.Config.Catalog.CacheTTL, m, a.Logger)
	a.Ledger = ledger.New(a.Driver, a.Logger)
	a.Machine = jobs.NewMachine(a.Driver, a.Ledger, m, a.Logger)
	a.Engine = core.NewEngine(a.Driver, a.Machine, m, a.Logger)

	a.Inference, err = inference.NewClient(inference.Config{
		PreprocessURL: a.Config.Inference.PreprocessURL,
		InferenceURL:  a.Config.Inference.InferenceURL,
		Timeout:       a.Config.Inference.Timeout,
		RPS:           a.Config.Inference.RPS,
	}, nil, m, a.Logger)
	if err != nil {
		return err
	}

	a.Processor = pipeline.NewProcessor(pipeline.Config{
		BucketRaw:           a.Config.Storage.BucketRaw,
		BucketProcessed:     a.Config.Storage.BucketProcessed,
		ConfidenceThreshold: a.Config.Pipeline.ConfidenceThreshold,
		SearchMarking:       a.Config.Pipeline.SearchMarking,
	}, a.Engine, a.Inference, a.Catalog, a.Artifacts, m, a.Logger)

	a.Exporter = export.NewService(a.Driver, a.Machine, a.Detections, a.Artifacts, a.Tools, a.Logger)
	return nil
}

// Ping checks database connectivity.
func (a *App) Ping(ctx context.Context) error {
	return repository.HealthCheck(ctx, a.Driver, a.Pool, a.Config.Database.DialTimeout, a.Logger)
}

// Migrate creates or updates the schema.
func (a *App) Migrate(ctx context.Context) error {
	a.Logger.Info("applying schema migrations")
	if err := migrate.Create(ctx, a.Driver); err != nil {
		a.Logger.Error("migration failed", "error", err)
		return common.NewAppError("MIGRATION_FAILED", "failed to apply schema: "+err.Error(), common.ErrDatabase)
	}
	return nil
}

func (a *App) Close() {
	repository.Close(a.Driver, a.Pool, a.Logger)
}
