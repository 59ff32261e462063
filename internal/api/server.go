package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/gigboard/internal/auth"
	"github.com/terra-clan/gigboard/internal/catalog"
	"github.com/terra-clan/gigboard/internal/config"
	"github.com/terra-clan/gigboard/internal/health"
	"github.com/terra-clan/gigboard/internal/lifecycle"
	"github.com/terra-clan/gigboard/internal/metrics"
	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/notify"
	"github.com/terra-clan/gigboard/internal/ratelimit"
	"github.com/terra-clan/gigboard/internal/receipt"
)

const requestTimeout = 60 * time.Second

// Deps are the collaborators the HTTP surface calls into
type Deps struct {
	Engine   *lifecycle.Engine
	Tokens   *auth.TokenManager
	Catalog  *catalog.Loader
	Receipts *receipt.Renderer
	Hub      *notify.Hub
	Health   *health.Registry
	Metrics  *metrics.Metrics
	Limiter  ratelimit.Limiter

	// ApplyPerMinute bounds applications per (post, freelancer); 0 disables it
	ApplyPerMinute int
}

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	engine   *lifecycle.Engine
	catalog  *catalog.Loader
	receipts *receipt.Renderer
	hub      *notify.Hub
	health   *health.Registry
	metrics  *metrics.Metrics
	limiter  ratelimit.Limiter
	auth     *auth.Middleware

	applyPerMinute int
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		config:         cfg,
		engine:         deps.Engine,
		catalog:        deps.Catalog,
		receipts:       deps.Receipts,
		hub:            deps.Hub,
		health:         deps.Health,
		metrics:        deps.Metrics,
		limiter:        deps.Limiter,
		auth:           auth.NewMiddleware(deps.Tokens, respondError),
		applyPerMinute: deps.ApplyPerMinute,
	}
	if s.catalog == nil {
		s.catalog = catalog.NewLoader()
	}
	if s.receipts == nil {
		s.receipts = receipt.NewRenderer()
	}
	if s.health == nil {
		s.health = health.NewRegistry()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Nop{}
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Instrument)
	}

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	requireClient := s.auth.RequireRole(models.RoleClient)
	requireFreelancer := s.auth.RequireRole(models.RoleFreelancer)

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived; no request timeout
		r.With(tokenFromQuery, s.auth.Authenticate).Get("/notifications/stream", s.handleNotificationStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(s.auth.Authenticate)

			r.Get("/categories", s.handleListCategories)

			r.Route("/posts", func(r chi.Router) {
				r.Get("/", s.handleListPosts)
				r.With(requireClient).Post("/", s.handleCreatePost)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPost)
					r.With(requireClient).Delete("/", s.handleDeletePost)

					r.With(requireFreelancer, s.applyRateLimit).Post("/applications", s.handleApply)
					r.With(requireFreelancer).Put("/applications/{appId}", s.handleUpdateApplication)
					r.With(requireClient).Post("/applications/{appId}/decision", s.handleDecideApplication)

					r.With(requireFreelancer).Post("/finalization", s.handleSubmitFinalization)
					r.With(requireClient).Post("/finalization/accept", s.handleAcceptFinalization)
					r.With(requireClient).Post("/finalization/reject", s.handleRejectFinalization)

					r.Post("/reviews", s.handleLeaveReview)

					r.With(requireClient).Post("/payments", s.handleInitiatePayment)
					r.Get("/payment-status", s.handleGetPaymentStatus)
				})
			})

			r.Route("/payments/{id}", func(r chi.Router) {
				r.Post("/verify", s.handleVerifyPayment)
				r.Get("/receipt", s.handleReceipt)
			})

			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
		})
	})

	s.router = r
}
