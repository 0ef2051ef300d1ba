// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New builds every dependency from the
// loaded configuration and wires them together, so nothing else in the
// application constructs its own collaborators.
//
//	config → sqlite.DB → services → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/config"
	"github.com/sakif/issuedesk/internal/handler"
	"github.com/sakif/issuedesk/internal/middleware"
	sqliteRepo "github.com/sakif/issuedesk/internal/repository/sqlite"
	"github.com/sakif/issuedesk/internal/service"
	"github.com/sakif/issuedesk/internal/validation"
)

// APIPrefix is the base path of the REST API.
const APIPrefix = "/api/rest"

// Server owns the router and the database connection. The database is
// closed when Start returns or when Close is called.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *middleware.Metrics
	users   *service.UserService
}

// New opens the database, runs migrations, wires the services and sets up
// routes. When cfg.Bootstrap.AdminPassword is set and the user table is
// empty, the first administrator is created.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: middleware.NewMetrics("issuedesk"),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// setupRoutes builds the dependency chain and registers all routes.
//
// ROUTES:
//
//	GET    /healthz                     → database ping
//	GET    /metrics                     → prometheus exposition
//	POST   /api/rest/auth/login         → password login
//	POST   /api/rest/auth/logout        → clear token cookie
//	GET    /api/rest/users/me           → caller's account
//	POST   /api/rest/users              → create user
//	GET    /api/rest/users/{id}         → get user
//	DELETE /api/rest/users/{id}         → delete user ("me" allowed)
//
// MIDDLEWARE ORDER:
//  1. RequestID  assigns the id the logger reports
//  2. RealIP     extracts the client IP from proxy headers
//  3. Recoverer  turns panics into 500s
//  4. Logger and metrics observe every request
//  5. Identify   (API routes only) resolves the caller
func (s *Server) setupRoutes() error {
	cfg := s.config

	tiers, err := access.NewRegistry(cfg.Access.Tiers, cfg.Access.DefaultLevel)
	if err != nil {
		return fmt.Errorf("building access registry: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)

	policy := access.NewPolicy(cfg.Auth.AllowAnonymous, access.ThresholdPrivilege(cfg.Access.Thresholds()))
	validator := validation.New(cfg.Users.Rules(), tiers)
	memberships := service.NewMembershipAssigner(s.db, cfg.Projects.DefaultName, s.logger)
	accounts := service.NewAccountBuilder(tiers, memberships)

	s.users = service.NewUserService(s.db, accounts, memberships, policy, tiers, validator, passwords, s.logger)
	authService := service.NewAuthService(s.db, accounts, tokens, passwords, s.logger)

	anonymousAccount := ""
	if cfg.Auth.AllowAnonymous {
		anonymousAccount = cfg.Auth.AnonymousAccount
	}
	resolver := auth.NewResolver(tokens, s.db, anonymousAccount, s.logger)

	userHandler := handler.NewUserHandler(s.users, s.logger)
	authHandler := handler.NewAuthHandler(authService, tokens.TTL(), cfg.Auth.SecureCookies, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route(APIPrefix, func(r chi.Router) {
		r.Use(auth.Identify(resolver))

		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Get("/users/me", userHandler.HandleMe)
		r.Post("/users", userHandler.HandleCreate)
		r.Get("/users/{id}", userHandler.HandleGet)
		r.Delete("/users/{id}", userHandler.HandleDelete)
	})

	return nil
}

func (s *Server) bootstrap(ctx context.Context) error {
	b := s.config.Bootstrap
	if b.AdminPassword == "" {
		return nil
	}
	if _, err := s.users.EnsureAdministrator(ctx, b.AdminName, b.AdminPassword); err != nil {
		return fmt.Errorf("bootstrapping administrator: %w", err)
	}
	return nil
}

// Handler returns the fully wired router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on return.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully:
// stop accepting connections, let in-flight requests finish within the
// configured timeout, then close the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("api", APIPrefix),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
