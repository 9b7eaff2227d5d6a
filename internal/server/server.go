package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/db"
	"github.com/commdir/apiserver/internal/events"
	"github.com/commdir/apiserver/internal/handlers"
	"github.com/commdir/apiserver/internal/mq"
	"github.com/commdir/apiserver/internal/roles"
	"github.com/commdir/apiserver/internal/services"
	"github.com/commdir/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *slog.Logger
}

// Deps are the collaborators the router is built from.
type Deps struct {
	AdminService *services.AdminService
	AuthService  *services.AuthService
	Issuer       *auth.Issuer
	Logger       *slog.Logger
}

// New constructs a Server with basic middleware and defaults.
// Startup fails when no token signing secret is configured.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	queue, err := mq.NewFromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	adminRepo := store.NewAdminRepository(dbConn)
	hasher := auth.NewBcryptHasher(cfg.Auth.HashCost)
	publisher := events.NewPublisher(queue, cfg.MQ.Channel)

	deps := Deps{
		AdminService: services.NewAdminService(adminRepo, hasher, publisher, logger),
		AuthService:  services.NewAuthService(adminRepo, hasher, issuer, logger),
		Issuer:       issuer,
		Logger:       logger,
	}
	router := NewRouter(cfg, deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP routes and middleware stack.
func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(timeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	authMiddleware := handlers.RequireAuth(deps.Issuer)
	var authorize func(http.Handler) http.Handler
	if cfg.Server.RequireAdminRole {
		authorize = handlers.RequireRole(roles.Admin)
	}

	var loginLimiter func(http.Handler) http.Handler
	if cfg.Server.LoginRatePerMin > 0 {
		loginLimiter = httprate.LimitByIP(cfg.Server.LoginRatePerMin, time.Minute)
	}

	adminHandler := handlers.NewAdminHandler(deps.AdminService, logger)
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.AdminService, logger)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/admins", func(r chi.Router) {
		handlers.AdminRouter(r, adminHandler, handlers.AdminRouterOptions{
			Authenticate:     authMiddleware,
			Authorize:        authorize,
			RegistrationOpen: cfg.Server.RegistrationOpen,
		})
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware, loginLimiter)
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
