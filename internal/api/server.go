package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/fraudguard-ai/fraudguard/internal/claims"
	"github.com/fraudguard-ai/fraudguard/internal/domain"
	"github.com/fraudguard-ai/fraudguard/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc *claims.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, custom *rules.CustomEngine, caps domain.Capabilities, version string) *Server {
	handler := NewHandler(svc, repo, cache, bus, custom, caps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no org required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Organization provisioning (no org header; these create and
	// enumerate the tenants themselves)
	router.Post("/organizations", handler.CreateOrganization)
	router.Get("/organizations", handler.ListOrganizations)
	router.Get("/organizations/{orgID}", handler.GetOrganization)

	// API routes (org required)
	router.Route("/", func(r chi.Router) {
		r.Use(OrgMiddleware)

		// Claim submission and retrieval
		r.Post("/claims", handler.CreateClaim)
		r.Get("/claims", handler.ListClaims)
		r.Get("/claims/{claimID}", handler.GetClaim)
		r.Get("/claims/{claimID}/audit", handler.GetAuditLogs)

		// Lifecycle transitions
		r.Post("/claims/{claimID}/review", handler.MarkInReview)
		r.Post("/claims/{claimID}/rescore", handler.RescoreClaim)
		r.Post("/claims/{claimID}/approve", handler.ApproveClaim)
		r.Post("/claims/{claimID}/reject", handler.RejectClaim)
		r.Post("/claims/{claimID}/override", handler.OverrideScore)
		r.Patch("/claims/{claimID}", handler.UpdateClaimFields)

		// Documents
		r.Post("/claims/{claimID}/documents", handler.UploadDocument)
		r.Post("/extract", handler.ExtractPreview)

		// Portfolio statistics
		r.Get("/stats", handler.GetStats)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Enumerations consumed by form clients
		r.Get("/metadata", handler.GetMetadata)
	})

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
