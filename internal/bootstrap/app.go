package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"catastro-backend/internal/documents"
	"catastro-backend/internal/extraction"
	"catastro-backend/internal/extraction/catalog"
	"catastro-backend/internal/extraction/demo"
	"catastro-backend/internal/extraction/primary"
	"catastro-backend/internal/extraction/secondary"
	"catastro-backend/internal/history"
	"catastro-backend/internal/services/health"
	"catastro-backend/internal/shared/config"
	"catastro-backend/internal/shared/server"
	"catastro-backend/internal/shared/storage/db"
	"catastro-backend/internal/shared/storage/scratch"
	"catastro-backend/internal/shared/telemetry"
)

const historyMemoryCapacity = 1000

// App holds shared dependencies and the router built from them.
type App struct {
	Config    config.Config
	ConfigErr error
	Router    *gin.Engine
	DB        *sql.DB
	Catalog   *catalog.Catalog
	Scratch   *scratch.Store

	History           history.Repo
	DocumentsService  *documents.Service
	ExtractionService *extraction.Service
	HealthService     *health.Service

	ExtractionHandler *extraction.Handler
	HistoryHandler    *history.Handler
	HealthHandler     *health.Handler

	closers []func() error
}

// Build prepares shared dependencies and wires routes. Invalid configuration
// does not fail the build: the app starts, reports config_loaded=false and
// answers extraction requests with a configuration error.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	app := &App{Config: cfg, ConfigErr: cfg.Validate()}
	if app.ConfigErr != nil {
		telemetry.Error("bootstrap.config_invalid", map[string]any{"error": app.ConfigErr})
	}

	cat, err := catalog.Load(cfg.FieldCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load field catalog: %w", err)
	}
	app.Catalog = cat

	if err := app.buildHistory(ctx); err != nil {
		app.Close()
		return nil, err
	}

	app.Scratch = scratch.New(filepath.Clean(cfg.TempDir), "upload", ".pdf")
	app.DocumentsService = &documents.Service{
		Store:    app.Scratch,
		MaxBytes: cfg.MaxUploadBytes,
	}

	svc := &extraction.Service{
		Intake:    app.DocumentsService,
		Timeout:   cfg.ExtractionTimeout,
		Threshold: cfg.ConfidenceThreshold,
		History:   app.History,
		ConfigErr: app.ConfigErr,
	}
	if app.ConfigErr == nil {
		if err := app.buildBackends(svc); err != nil {
			app.Close()
			return nil, err
		}
	}
	app.ExtractionService = svc

	app.HealthService = health.NewService(cfg, app.ConfigErr)
	app.ExtractionHandler = extraction.NewHandler(svc, cfg.MaxUploadBytes)
	app.HistoryHandler = history.NewHandler(app.History)
	app.HealthHandler = health.NewHandler(app.HealthService)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            cfg,
		ExtractionHandler: app.ExtractionHandler,
		HistoryHandler:    app.HistoryHandler,
		HealthHandler:     app.HealthHandler,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"app":              cfg.AppName,
		"agent":            cfg.AgentName,
		"env":              cfg.Env,
		"config_loaded":    app.ConfigErr == nil,
		"primary_provider": cfg.PrimaryProvider,
		"history_store":    cfg.HistoryStore,
	})
	return app, nil
}

// Close releases the resources opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildBackends(svc *extraction.Service) error {
	cfg := a.Config
	if cfg.PrimaryProvider == "demo" {
		svc.Primary = demo.New(extraction.BackendPrimary, cfg.PrimaryModel, cfg.DemoDelay)
	} else {
		pcfg := primary.Config{
			Endpoint: cfg.ResolvedPrimaryEndpoint(),
			Model:    cfg.PrimaryModel,
		}
		if !cfg.VertexEnabled() {
			pcfg.APIKey = cfg.APIKey
		}
		p, err := primary.New(a.Catalog, pcfg)
		if err != nil {
			return fmt.Errorf("primary backend: %w", err)
		}
		svc.Primary = p
	}
	svc.Secondary = secondary.New(a.Catalog, cfg.SecondaryModel)
	return nil
}

func (a *App) buildHistory(ctx context.Context) error {
	cfg := a.Config
	switch cfg.HistoryStore {
	case "postgres":
		sqlDB, err := buildDB(ctx, cfg)
		if err != nil {
			return err
		}
		if sqlDB != nil {
			a.DB = sqlDB
			a.closers = append(a.closers, func() error {
				db.LogPoolStats(sqlDB, "history", "close", nil)
				return sqlDB.Close()
			})
			a.History = &history.PGRepo{DB: sqlDB}
			return nil
		}
	case "bolt":
		repo, err := history.OpenBoltRepo(cfg.HistoryBoltPath)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		a.History = repo
		return nil
	}
	a.History = history.NewMemoryRepo(historyMemoryCapacity)
	return nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		telemetry.Warn("bootstrap.database_url_empty", map[string]any{"fallback": "memory"})
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.HistoryOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			sqlDB = nil
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{"error": err, "fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("history database: %w", err)
	}
	return sqlDB, nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
