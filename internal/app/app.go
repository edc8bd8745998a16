// Package app wires configuration into the validation engine, its
// collaborators, and the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"branchcheck/internal/api"
	"branchcheck/internal/bucket"
	"branchcheck/internal/catalog"
	"branchcheck/internal/checks"
	"branchcheck/internal/config"
	"branchcheck/internal/db"
	"branchcheck/internal/db/repository"
	"branchcheck/internal/domain"
	"branchcheck/internal/engine"
	"branchcheck/internal/middleware"
	"branchcheck/internal/report"
	"branchcheck/internal/service/run"
	"branchcheck/internal/storage"
	"branchcheck/internal/ui"
	"branchcheck/internal/validator"
)

// App is the fully wired application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *checks.Registry
	Catalog   *catalog.Catalog
	Storage   domain.StorageCatalog
	Buckets   *bucket.Resolver
	Warehouse *engine.Warehouse
	Validator *validator.Validator
	Runs      *run.Service
	History   *db.Store // nil when history is disabled

	warehouseDB *sql.DB
}

// LoadChecks loads the check catalog and validates every row against the
// built-in registry, so a catalog naming an unknown check fails at startup.
func LoadChecks(cfg *config.Config) (*checks.Registry, *catalog.Catalog, error) {
	registry := checks.NewDefaultRegistry()
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := registry.ValidateCatalog(cat.Rows()); err != nil {
		return nil, nil, fmt.Errorf("check catalog %s: %w", cat.Source(), err)
	}
	return registry, cat, nil
}

// New wires every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry, cat, err := LoadChecks(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("check catalog loaded", "source", cat.Source(), "rows", cat.Len(), "checks", len(registry.Names()))

	a := &App{Config: cfg, Logger: logger, Registry: registry, Catalog: cat}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	// One pool serves both the warehouse and, in warehouse mode, the
	// storage catalog: DuckDB files cannot be opened twice in one process.
	// InitSQL is applied to the pool so both see attached buckets.
	a.warehouseDB, err = engine.OpenDB(cfg.Warehouse.Driver, cfg.Warehouse.DSN, cfg.Warehouse.InitSQL)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	a.Warehouse = engine.NewWarehouseFromDB(a.warehouseDB, engine.Options{
		QueryTimeout: cfg.Warehouse.QueryTimeout,
		Logger:       logger,
	})

	a.Storage, err = newStorage(cfg, a.warehouseDB, logger)
	if err != nil {
		return nil, err
	}
	a.Buckets = bucket.NewResolver(a.Storage, logger)

	a.Validator = validator.New(a.Warehouse, a.Buckets, cat, registry,
		validator.WithRequiredColumns(cfg.Validation.RequiredColumns),
		validator.WithLogger(logger))

	var runs domain.RunRepository
	if cfg.History.Enabled {
		a.History, err = db.OpenStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		runs = repository.NewRunRepo(a.History.Write, a.History.Read)
	}
	a.Runs = run.NewService(a.Validator, runs, logger)

	ok = true
	return a, nil
}

func newStorage(cfg *config.Config, warehouse *sql.DB, logger *slog.Logger) (domain.StorageCatalog, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeWarehouse:
		return storage.NewWarehouseCatalog(warehouse, cfg.Warehouse.Driver)
	case config.StorageModeAPI, "":
		return storage.NewClient(cfg.Storage.URL, cfg.Storage.Token, storage.ClientOptions{
			Timeout:           cfg.Storage.Timeout,
			RequestsPerSecond: cfg.Storage.RateLimitRPS,
			Burst:             cfg.Storage.RateLimitBurst,
			Logger:            logger,
		}), nil
	}
	return nil, domain.ErrValidation("unknown storage mode %q", cfg.Storage.Mode)
}

// Export writes a run's results to the given sink URI, or to the configured
// sink when uri is empty.
func (a *App) Export(ctx context.Context, uri string, rec *domain.RunRecord, rs *domain.ResultSet, format string) (string, error) {
	if uri == "" {
		uri = a.Config.Report.Sink
	}
	if format == "" {
		format = a.Config.Report.Format
	}
	f, err := report.ParseFormat(format)
	if err != nil {
		return "", err
	}
	return report.Publish(ctx, uri, a.Config.Report, rec.ID, rs, f)
}

// HTTPHandler builds the API and UI router. ctx bounds background work
// started by the middleware.
func (a *App) HTTPHandler(ctx context.Context, production bool) http.Handler {
	h := api.NewHandler(a.Storage, a.Registry, a.Runs, a.Logger)
	uiHandler := ui.NewHandler(a.Storage, a.Runs, a.Runs.HistoryEnabled(), production, a.Logger)
	return api.NewRouter(ctx, h, api.RouterConfig{
		CORSAllowedOrigins: a.Config.Server.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.Config.Server.RateLimitRPS,
			Burst:             a.Config.Server.RateLimitBurst,
		},
		Logger: a.Logger,
		UI:     uiHandler.Routes(),
	})
}

// Close releases the history store and the warehouse pool.
func (a *App) Close() error {
	var errs []error
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Warehouse != nil {
		errs = append(errs, a.Warehouse.Disconnect())
	}
	if a.warehouseDB != nil {
		errs = append(errs, a.warehouseDB.Close())
	}
	return errors.Join(errs...)
}
