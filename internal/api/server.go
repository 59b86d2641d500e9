// Package api exposes the HTTP surface of Cardlens.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cardlens/cardlens/internal/badges"
	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/recommend"
	"github.com/cardlens/cardlens/internal/worker"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipeline *worker.Pipeline, recommender *recommend.Service, tracker *performance.Tracker, badgeSvc *badges.Service, places domain.PlacesClient, version string, async bool) *Server {
	handler := NewHandler(repo, cache, bus, pipeline, recommender, tracker, badgeSvc, places, version, async)
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

	// Recommendations
	router.Post("/recommend", handler.Recommend)
	router.Get("/recommendations/current", handler.RecommendCurrent)

	// Performance
	router.Get("/performance", handler.Performance)

	// Transactions
	router.Post("/transactions", handler.IngestTransaction)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Catalog
	router.Get("/cards", handler.ListCards)
	router.Get("/cards/{id}", handler.GetCard)
	router.Get("/cards/{id}/benefits", handler.ListCardBenefits)

	// Per-user resources
	router.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/cards", handler.ListUserCards)
		r.Post("/cards", handler.RegisterUserCard)
		r.Delete("/cards/{cardID}", handler.RemoveUserCard)
		r.Get("/missed-benefits", handler.MissedBenefits)
		r.Get("/badges", handler.ListUserBadges)
		r.Post("/badges/representative", handler.SetRepresentativeBadge)
	})

	// Places
	router.Get("/places/nearby", handler.NearbyPlaces)

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
