// Package server provides the HTTP server for the pairpad API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pairpad/pairpad/internal/assist"
	"github.com/pairpad/pairpad/internal/collab"
	"github.com/pairpad/pairpad/internal/config"
	"github.com/pairpad/pairpad/internal/event"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Hostname     string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		Hostname:    "127.0.0.1",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
		// No write timeout: websocket and SSE connections are long-lived.
		WriteTimeout: 0,
	}
}

// Server is the HTTP server.
type Server struct {
	config    *Config
	appConfig *config.Config
	router    *chi.Mux
	httpSrv   *http.Server

	bus       *event.Bus
	collab    *collab.Router
	assistant *assist.Assistant
	promReg   *prometheus.Registry
}

// New creates a new Server instance. complete is the opaque AI completion
// backend; pass nil to disable the assist endpoint.
func New(cfg *Config, appConfig *config.Config, complete assist.CompleteFunc) *Server {
	if appConfig == nil {
		appConfig = config.Default()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())

	bus := event.NewBus()
	collabRouter := collab.NewRouter(bus, promReg)

	s := &Server{
		config:    cfg,
		appConfig: appConfig,
		router:    chi.NewRouter(),
		bus:       bus,
		collab:    collabRouter,
		assistant: assist.New(complete, collabRouter),
		promReg:   promReg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.bus.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Collab returns the collaboration router, the administrative surface
// other components broadcast and query through.
func (s *Server) Collab() *collab.Router {
	return s.collab
}
