// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the badge server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"reboosty/config"
	"reboosty/internal/kvstore"
	"reboosty/internal/observability"
	"reboosty/internal/selector"
	"reboosty/internal/server"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config   *config.Config
	store    kvstore.Store
	selector *selector.Selector
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig holds the loaded application configuration produced by config.Load.
	AppConfig *config.Config

	// Registry receives Prometheus collectors when metrics are enabled.
	// Defaults to the global registry.
	Registry *prometheus.Registry

	// Rand overrides the random source used to pick repos.
	Rand selector.Rand
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig

	app := &App{
		config: appCfg,
	}

	store, err := kvstore.New(ctx, storeConfig(appCfg.Store))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", appCfg.Store.Type, err)
	}
	app.store = store

	opts := []selector.Option{selector.WithRand(cfg.Rand)}
	serverCfg := &server.Config{
		CacheControlMaxAge: appCfg.Server.CacheControlMaxAge,
		MetricsEnabled:     appCfg.Metrics.Enabled,
		MetricsEndpoint:    appCfg.Metrics.Endpoint,
	}

	// Setup observability hooks for metrics collection (if enabled)
	if appCfg.Metrics.Enabled {
		var reg prometheus.Registerer
		if cfg.Registry != nil {
			reg = cfg.Registry
			serverCfg.MetricsGatherer = cfg.Registry
		}
		metrics := observability.NewMetrics(reg)
		store = metrics.InstrumentStore(store)
		opts = append(opts, selector.WithHooks(metrics.Hooks()))
	}

	sel, err := selector.New(store, selector.Config{
		DefaultRepoURL: appCfg.Selection.DefaultRepoURL,
		AllowedHost:    appCfg.Selection.AllowedHost,
		SelectionTTL:   appCfg.Selection.SelectionTTL(),
		RegistryTTL:    appCfg.Selection.RegistryTTL(),
		StoreTimeout:   appCfg.Selection.StoreTimeout,
	}, opts...)
	if err != nil {
		if closeErr := app.store.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize selector: %w (also: store close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize selector: %w", err)
	}
	app.selector = sel

	// Log configuration status
	app.logStartupInfo()

	app.server = server.New(sel, serverCfg)

	return app, nil
}

func storeConfig(cfg config.StoreConfig) kvstore.Config {
	return kvstore.Config{
		Type:            cfg.Type,
		CleanupInterval: cfg.CleanupInterval,
		Redis:           kvstore.RedisConfig{URL: cfg.Redis.URL},
		SQLite:          kvstore.SQLiteConfig{Path: cfg.SQLite.Path},
		PostgreSQL: kvstore.PostgreSQLConfig{
			URL:      cfg.PostgreSQL.URL,
			MaxConns: cfg.PostgreSQL.MaxConns,
		},
		MongoDB: kvstore.MongoDBConfig{
			URL:      cfg.MongoDB.URL,
			Database: cfg.MongoDB.Database,
		},
	}
}

// Selector returns the repo selector.
func (a *App) Selector() *selector.Selector {
	return a.selector
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Run serves on addr until ctx is done or the server fails, then shuts the
// app down. It returns only after Shutdown has finished, so in-flight requests
// are drained and the store is closed before the caller exits.
func (a *App) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Start(addr)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		defer func() {
			// Start returns once Shutdown has closed the listener
			if err := <-serveErr; err != nil {
				slog.Error("server error during shutdown", "error", err)
			}
		}()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, honoring ctx, then the store.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// Stop accepting new requests before the store goes away
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("store close error", "error", err)
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	slog.Info("store configured", "type", cfg.Store.Type)
	if !kvstore.IsShared(cfg.Store.Type) {
		slog.Warn("store is local to this process - selections are not shared between instances",
			"type", cfg.Store.Type,
			"recommendation", "set STORE_TYPE to redis, postgresql or mongodb when running more than one instance")
	}

	slog.Info("selection configured",
		"default_repo_url", a.selector.DefaultRepoURL(),
		"selection_ttl", cfg.Selection.SelectionTTL(),
		"registry_ttl", cfg.Selection.RegistryTTL(),
		"store_timeout", cfg.Selection.StoreTimeout,
		"cache_control_max_age", cfg.Server.CacheControlMaxAge,
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}
}
