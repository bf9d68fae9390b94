// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/mandor/internal/application"
	"github.com/jobrunner/mandor/internal/config"
	"github.com/jobrunner/mandor/internal/ports/input"
)

// Syncer triggers a manual catalog sync.
type Syncer interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
	RetryAfter() time.Duration
}

// Services bundles the primary ports served over HTTP. Sync is optional.
type Services struct {
	Geofences input.GeofenceService
	Catalog   input.LocationCatalog
	Health    input.HealthChecker
	Sync      Syncer
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server    *http.Server
	router    *mux.Router
	geofences input.GeofenceService
	catalog   input.LocationCatalog
	health    input.HealthChecker
	sync      Syncer
	logger    *slog.Logger
	config    config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, services Services, logger *slog.Logger) *Server {
	s := &Server{
		geofences: services.Geofences,
		catalog:   services.Catalog,
		health:    services.Health,
		sync:      services.Sync,
		logger:    logger,
		config:    cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Locations and geofences
	api.HandleFunc("/locations", s.handleListLocations).Methods(http.MethodGet)
	api.HandleFunc("/locations/{locationId}", s.handleGetLocation).Methods(http.MethodGet)
	api.HandleFunc("/locations/{locationId}/geofence", s.handleGeofence).Methods(http.MethodGet)
	api.HandleFunc("/locations/{locationId}/contains", s.handleContains).Methods(http.MethodGet)
	api.HandleFunc("/locate", s.handleLocate).Methods(http.MethodGet)
	api.HandleFunc("/normalize", s.handleNormalize).Methods(s.methods(http.MethodPost)...)

	api.HandleFunc("/sources", s.handleListSources).Methods(http.MethodGet)

	if s.sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(s.methods(http.MethodPost)...)
	}

	// OpenAPI document and Swagger UI
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)

	return r
}

// methods adds OPTIONS to the route methods when CORS preflight requests
// must be answered.
func (s *Server) methods(m ...string) []string {
	if s.config.CORS.Enabled() {
		return append(m, http.MethodOptions)
	}
	return m
}

// Use appends middleware to the router. Middleware runs on matched routes,
// so it may be added after the routes are registered.
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				s.writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
