package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	CacheControlMaxAge int                 // max-age in seconds for badge images
	MetricsEnabled     bool                // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint    string              // HTTP path for metrics endpoint (default: /metrics)
	MetricsGatherer    prometheus.Gatherer // Optional: defaults to the global registry
}

// New creates a new HTTP server
func New(resolver Resolver, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if cfg == nil {
		cfg = &Config{}
	}

	handler := NewHandler(resolver, cfg.CacheControlMaxAge)

	// Global middleware stack (order matters)
	e.Use(RequestID())
	e.Use(requestLogger())
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("panic recovered",
				"error", err,
				"path", c.Request().URL.Path,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"stack", string(stack),
			)
			return err
		},
	}))
	e.Use(Brotli())

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		var metricsHandler http.Handler = promhttp.Handler()
		if cfg.MetricsGatherer != nil {
			metricsHandler = promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{})
		}
		e.GET(metricsPath, echo.WrapHandler(metricsHandler))
	}

	// Badge routes
	e.GET("/", handler.Badge)
	e.GET("/api", handler.Badge)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
