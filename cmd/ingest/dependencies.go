package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-ingest/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-ingest/internal/domain/import/normalizer"
	importrepo "github.com/FACorreiaa/statement-ingest/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-ingest/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ingest/pkg/config"
	"github.com/FACorreiaa/statement-ingest/pkg/db"
	"github.com/FACorreiaa/statement-ingest/pkg/metrics"
	"github.com/FACorreiaa/statement-ingest/pkg/storage"
)

// Dependencies holds everything a run needs.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *db.DB

	Metrics               *metrics.Metrics
	Archive               storage.Archive
	ImportRepo            *importrepo.ImportRepository
	CategorizationRepo    *categorization.Repository
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService

	// Rules from -rules; nil means the rule source (if any) decides.
	Rules []categorization.Rule
}

// runOptions are the command-line overrides applied on top of config.
type runOptions struct {
	userID    string
	rulesPath string
	workers   int
	persist   bool
	watch     bool

	listArchive bool
	retryID     string
	saveRules   bool
}

// usesArchive reports whether the run reads or writes the file archive.
func (o runOptions) usesArchive() bool {
	return o.watch || o.listArchive || o.retryID != ""
}

// InitDependencies wires the pipeline for one process.
func InitDependencies(ctx context.Context, cfg *config.Config, opts runOptions, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if opts.persist {
		if err := deps.initDatabase(ctx); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
	}

	if err := deps.initRules(opts); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	if opts.usesArchive() {
		archive, err := storage.NewLocalArchive(cfg.Storage.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("failed to init archive: %w", err)
		}
		deps.Archive = archive
	}

	if cfg.Observability.MetricsEnabled || opts.watch {
		deps.Metrics = metrics.New()
	}

	deps.initServices(opts)

	logger.Debug("dependencies initialized",
		slog.Bool("persist", opts.persist),
		slog.Bool("watch", opts.watch),
		slog.Int("rules", len(deps.Rules)))
	return deps, nil
}

// initDatabase connects with retry and applies migrations.
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.ImportRepo = importrepo.NewImportRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewRepository(d.DB.Pool)
	d.CategorizationService = categorization.NewService(d.CategorizationRepo, d.Logger)

	d.Logger.Info("database connected and migrations completed")
	return nil
}

func (d *Dependencies) initRules(opts runOptions) error {
	if opts.rulesPath == "" {
		return nil
	}
	rules, err := categorization.LoadRulesFile(opts.rulesPath, opts.userID)
	if err != nil {
		return err
	}
	d.Rules = rules
	return nil
}

func (d *Dependencies) initServices(opts runOptions) {
	workers := opts.workers
	if workers <= 0 {
		workers = importservice.DefaultWorkers()
	}

	d.ImportService = importservice.NewImportService(importservice.Options{
		Workers:  workers,
		Currency: d.Config.Pipeline.Currency,
		Normalizer: normalizer.Options{
			DecimalComma:  d.Config.Pipeline.DecimalComma,
			MonthFirst:    d.Config.Pipeline.MonthFirst,
			InferMerchant: d.Config.Pipeline.InferMerchant,
		},
	}, d.Logger).WithMetrics(d.Metrics)

	if d.ImportRepo != nil {
		d.ImportService.
			WithHashIndex(d.ImportRepo).
			WithSink(d.ImportRepo).
			WithRuleSource(d.CategorizationService)
		return
	}

	// Without a database, duplicates are tracked across the files of this run.
	index := dedupe.NewMemoryIndex()
	d.ImportService.
		WithHashIndex(index).
		WithSink(importservice.MemorySink{Index: index})
}

// Close releases the database pool, if any.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
