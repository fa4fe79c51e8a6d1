// Package api serves the bridge operations and the event stream over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/strands-bridge/internal/deploy"
	"github.com/randomizedcoder/strands-bridge/internal/event"
	"github.com/randomizedcoder/strands-bridge/internal/metrics"
	"github.com/randomizedcoder/strands-bridge/internal/supervisor"
	"github.com/randomizedcoder/strands-bridge/internal/watcher"
)

const defaultKeepAlive = 15 * time.Second

// Operations is the set of bridge operations exposed over HTTP. Satisfied
// by *bridge.Bridge.
type Operations interface {
	Launch(ctx context.Context, command string, args []string) (string, error)
	Start(ctx context.Context, args []string) (*supervisor.Handle, error)
	Cancel(id string) error
	Launches() []supervisor.Info
	ReadConfig(path string) (string, error)
	WriteConfig(path, content string) error
	WatchConfig(path string) (string, error)
	Unwatch(id string) error
	Watches() []watcher.WatchInfo
	GetDeploymentStatus(ctx context.Context) ([]deploy.DeploymentUpdate, error)
}

// EventSource is the event stream served on /events and /ws. Satisfied by
// *event.Hub.
type EventSource interface {
	Subscribe() (<-chan event.Event, func())
	SnapshotSince(lastID int64) []event.Event
}

// Config holds API server configuration.
type Config struct {
	Listen string

	// AllowedOrigins for /api requests and WebSocket upgrades. Empty means
	// same host only.
	AllowedOrigins []string

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Ready backs /ready and /readyz.
	Ready func() bool

	// KeepAlive is the SSE comment interval.
	KeepAlive time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	config   Config
	ops      Operations
	events   EventSource
	logger   *slog.Logger
	router   chi.Router
	server   *http.Server
	listener net.Listener
}

// New creates a new API server instance.
func New(config Config, ops Operations, events EventSource, logger *slog.Logger) *Server {
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaultKeepAlive
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		ops:    ops,
		events: events,
		logger: logger,
	}
	s.router = s.setupRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Ops endpoints.
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.config.Gatherer))
	r.Get("/health", metrics.HealthHandler)
	r.Get("/healthz", metrics.HealthHandler)
	r.Get("/ready", metrics.ReadyHandler(s.config.Ready))
	r.Get("/readyz", metrics.ReadyHandler(s.config.Ready))

	// Event streams.
	r.Get("/events", s.handleEvents)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		// Browsers send text/plain and form posts cross-origin without a
		// preflight, so only JSON bodies from allowed origins get through.
		r.Use(s.originGuard)
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/launch", s.handleLaunch)
		r.Get("/launches", s.handleListLaunches)
		r.Post("/launches", s.handleStartLaunch)
		r.Delete("/launches/{id}", s.handleCancelLaunch)

		r.Get("/config", s.handleReadConfig)
		r.Put("/config", s.handleWriteConfig)

		r.Post("/watch", s.handleWatch)
		r.Get("/watches", s.handleListWatches)
		r.Delete("/watches/{id}", s.handleUnwatch)

		r.Get("/deployments/status", s.handleDeploymentStatus)
	})

	return r
}

// originGuard answers 403 for requests whose Origin is not allowed.
func (s *Server) originGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isOriginAllowed(r, s.config.AllowedOrigins) {
			s.logger.Warn("api_origin_rejected",
				"origin", r.Header.Get("Origin"),
				"method", r.Method,
				"path", r.URL.Path,
			)
			s.writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves in a goroutine. Bind errors are
// returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: /events and /ws are long-lived, and /api/launch
		// lasts as long as the CLI runs.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("api_server_starting", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api_server_error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Debug("api_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Listen
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
