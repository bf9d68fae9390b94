// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobrunner/mandor/internal/adapters/export"
	httpAdapter "github.com/jobrunner/mandor/internal/adapters/http"
	"github.com/jobrunner/mandor/internal/adapters/metrics"
	"github.com/jobrunner/mandor/internal/adapters/sqlite"
	"github.com/jobrunner/mandor/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/mandor/internal/adapters/tls"
	"github.com/jobrunner/mandor/internal/adapters/watcher"
	"github.com/jobrunner/mandor/internal/application"
	"github.com/jobrunner/mandor/internal/config"
	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Repository    *sqlite.Repository
	Catalog       *application.LocationCatalog
	Geofences     *application.GeofenceService
	HealthService *application.HealthService
	SyncService   *application.SyncService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	MetricsServer *metrics.Server
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(metrics.DefaultNamespace)
		app.MetricsServer = metrics.NewServer(
			cfg.Metrics.Host,
			cfg.Metrics.Port,
			cfg.Metrics.Path,
			app.Metrics.Handler(),
			logger,
		)
	}

	var metricsCollector output.MetricsCollector
	if app.Metrics != nil {
		metricsCollector = app.Metrics
	} else {
		metricsCollector = &output.NoOpMetrics{}
	}

	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	repo, err := sqlite.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening location database: %w", err)
	}
	app.Repository = repo

	app.Catalog = application.NewLocationCatalog(
		app.Repository,
		export.NewDecoder(),
		app.Storage,
		metricsCollector,
		logger,
		application.CatalogConfig{LocalPath: cfg.Storage.LocalPath},
	)

	app.Geofences = application.NewGeofenceService(
		app.Catalog,
		metricsCollector,
		logger,
		application.GeofenceConfig{
			DefaultCenter:   cfg.Map.DefaultCenter.Point(),
			CacheTTL:        cfg.Cache.TTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
		},
	)

	app.HealthService = application.NewHealthService(app.Catalog)

	services := httpAdapter.Services{
		Geofences: app.Geofences,
		Catalog:   app.Catalog,
		Health:    app.HealthService,
	}
	if cfg.Sync.Enabled {
		app.SyncService = application.NewSyncService(app.Catalog, cfg.Sync.Interval, logger)
		services.Sync = app.SyncService
	}

	app.HTTPServer = httpAdapter.NewServer(cfg.Server, services, logger)
	if app.Metrics != nil {
		app.HTTPServer.Use(app.Metrics.Middleware)
	}

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:  cfg.TLS.Enabled,
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			tlsAdapter.Timeouts{
				Read:  cfg.Server.ReadTimeout,
				Write: cfg.Server.WriteTimeout,
				Idle:  cfg.Server.IdleTimeout,
			},
			logger,
		)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Hot reload of local export files
	if cfg.Storage.Type == string(output.StorageTypeLocal) {
		w, err := watcher.New(
			watcher.Config{
				Paths: []string{cfg.Storage.LocalPath},
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start imports all exports and serves until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Catalog.LoadAll(ctx); err != nil {
		a.Logger.Warn("failed to load exports", "error", err)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil {
		a.SyncService.Start(ctx)
	}

	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.ManageCertificates(ctx); err != nil {
			return err
		}
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := a.Repository.Close(); err != nil {
		return fmt.Errorf("closing location database: %w", err)
	}
	return nil
}

// handleFileEvent handles file system events for hot-reload.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return a.Catalog.LoadExport(ctx, event.Path)

	case watcher.OpDelete:
		sourceID := domain.DeriveSourceID(event.Path)
		if err := a.Catalog.UnloadExport(ctx, sourceID); err != nil {
			a.Logger.Warn("failed to unload deleted export", "id", sourceID, "error", err)
		}
		return nil
	}

	return nil
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case output.StorageTypeHTTP:
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
