package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/blend"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/feature"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// Deps bundles the collaborators the server routes to.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Engine   *rules.Engine
	Manager  *model.Manager
	Blender  *blend.Blender
	Deriver  *feature.Deriver
	Analyzer *analytics.Analyzer
	Scoring  domain.ScoringConfig
	Version  string
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps.Repo, deps.Cache, deps.Bus, deps.Engine, deps.Manager, deps.Blender, deps.Deriver, deps.Analyzer, deps.Scoring, deps.Version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Scoring
	router.Post("/score", handler.Score)

	// Assessment and transaction retrieval
	router.Get("/assessments/{id}", handler.GetAssessment)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Model lifecycle
	router.Get("/model", handler.GetModel)
	router.Post("/model/train", handler.TrainModel)

	// Rule management
	router.Get("/rules", handler.ListRules)
	router.Get("/rules/{id}", handler.GetRule)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

	// Dataset analytics
	router.Get("/analytics/summary", handler.AnalyticsSummary)
	router.Get("/analytics/amounts", handler.AnalyticsAmounts)
	router.Get("/analytics/timeofday", handler.AnalyticsTimeOfDay)
	router.Get("/analytics/distance", handler.AnalyticsDistance)
	router.Get("/analytics/fraud-daily", handler.AnalyticsFraudDaily)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
