package main

import (
	"fmt"
	"log/slog"
	"time"

	importhandler "github.com/fstrauf/txapp/internal/domain/import/handler"
	importrepo "github.com/fstrauf/txapp/internal/domain/import/repository"
	importservice "github.com/fstrauf/txapp/internal/domain/import/service"
	"github.com/fstrauf/txapp/internal/domain/insights"
	insightshandler "github.com/fstrauf/txapp/internal/domain/insights/handler"
	"github.com/fstrauf/txapp/pkg/config"
	"github.com/fstrauf/txapp/pkg/cron"
	"github.com/fstrauf/txapp/pkg/db"
	"github.com/fstrauf/txapp/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo   importrepo.ImportRepository
	InsightsRepo *insights.PostgresInsightsRepository

	// Services
	ImportService   *importservice.ImportService
	InsightsService *insights.Service
	Scheduler       *cron.Scheduler
	Archive         storage.Archive

	// Handlers
	ImportHandler   *importhandler.ImportHandler
	InsightsHandler *insightshandler.InsightsHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initRepositories()
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.InsightsRepo = insights.NewPostgresInsightsRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() error {
	d.InsightsService = insights.NewService(d.InsightsRepo, d.Logger)
	d.ImportService = importservice.NewImportService(d.ImportRepo, d.Logger).
		WithInvalidator(d.InsightsService)
	d.Scheduler = cron.NewScheduler(d.InsightsRepo, d.InsightsService, d.Logger)

	archive, err := storage.NewLocalArchive(d.Config.Import.ArchiveDir)
	if err != nil {
		return fmt.Errorf("failed to init statement archive: %w", err)
	}
	d.Archive = archive

	d.Logger.Info("services initialized")
	return nil
}

func (d *Dependencies) initHandlers() {
	defaultMode := importservice.ModeAtomic
	if d.Config.Import.BestEffortMode {
		defaultMode = importservice.ModeBestEffort
	}
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger).
		WithArchive(d.Archive).
		WithMaxFileSize(d.Config.Import.MaxFileSizeBytes).
		WithDefaultMode(defaultMode)
	d.InsightsHandler = insightshandler.NewInsightsHandler(d.InsightsService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
