// Package server wires the HTTP server: database, services, handlers,
// middleware and routes.
//
// COMPOSITION ROOT:
// Every dependency is built here, in New, and handed down:
//
//	sqlite.DB ─┬─ Users()  ─┬─ AuthService    ─ AuthHandler
//	           │            ├─ ProfileService ─ ProfileHandler
//	           └─ Visits() ─┴─ VisitService   ─ VisitHandler
//
// Services receive repository interfaces, handlers receive services, and
// nothing below this package knows how the others were constructed.
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
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/sakif/devtree/internal/auth"
	"github.com/sakif/devtree/internal/config"
	"github.com/sakif/devtree/internal/handler"
	"github.com/sakif/devtree/internal/middleware"
	sqliteRepo "github.com/sakif/devtree/internal/repository/sqlite"
	"github.com/sakif/devtree/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and the database connection. The connection is
// closed when Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	tokens *auth.TokenService
	github *auth.GitHubProvider
}

// New opens the database and builds the router.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it is not confused with
// the modernc.org/sqlite driver.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}

	if cfg.GitHub.Enabled() {
		s.github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	} else {
		logger.Info("GitHub sign-in disabled: GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set")
	}

	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/register
//	POST   /auth/login
//	POST   /auth/logout
//	GET    /auth/github/login        (only when GitHub is configured)
//	GET    /auth/github/callback     (only when GitHub is configured)
//	GET    /auth/check-handle?handle=
//	GET    /user                     auth
//	PATCH  /user                     auth
//	GET    /user/my-stats            auth
//	GET    /user/{handle}
//	POST   /user/{handle}/visit      throttled per IP
//	GET    /user/{handle}/stats
//	POST   /links/{network}/toggle   auth
//	PUT    /links/{network}/url      auth
//	POST   /links/reorder            auth
//	DELETE /links/{id}               auth
//	GET    /health
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID  assigns an id to each request (logged by Logger)
//  2. RealIP     rewrites RemoteAddr from X-Forwarded-For / X-Real-IP,
//                installed only with TRUST_PROXY; otherwise the socket
//                address is the client IP
//  3. Logger     logs each request with timing
//  4. Recoverer  turns panics into 500s (inside Logger, so they are logged)
//  5. CORS       answers preflights for the configured frontends
//
// /user/my-stats is a static segment, so chi matches it before {handle}.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	if s.config.TrustProxy {
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.New(s.config.CORSOptions()).Handler)

	users := s.db.Users()
	visits := s.db.Visits()

	authService := service.NewAuthService(users, s.tokens, auth.NewPasswordService(), s.logger)
	profileService := service.NewProfileService(users, s.logger)
	visitService := service.NewVisitService(users, visits, s.config.VisitDedupWindow, s.logger)

	frontend := ""
	if len(s.config.FrontendURLs) > 0 {
		frontend = s.config.FrontendURLs[0]
	}
	authHandler := handler.NewAuthHandler(authService, s.tokens, s.github, frontend, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	visitHandler := handler.NewVisitHandler(visitService, s.logger)

	requireAuth := auth.RequireAuth(s.tokens)
	throttle := middleware.Throttle(middleware.NewIPRateLimiter(
		rate.Limit(s.config.VisitRateLimit),
		s.config.VisitRateBurst,
		middleware.DefaultLimiterTTL,
	))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/check-handle", authHandler.HandleCheckHandle)
		if s.github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/user", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", authHandler.HandleMe)
			r.Patch("/", profileHandler.HandleUpdate)
			r.Get("/my-stats", visitHandler.HandleMyStats)
		})

		r.Get("/{handle}", profileHandler.HandleGetPublic)
		r.Get("/{handle}/stats", visitHandler.HandleStats)
		r.With(throttle).Post("/{handle}/visit", visitHandler.HandleVisit)
	})

	s.router.Route("/links", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/reorder", profileHandler.HandleReorder)
		r.Post("/{network}/toggle", profileHandler.HandleToggleLink)
		r.Put("/{network}/url", profileHandler.HandleSetLinkURL)
		r.Delete("/{id}", profileHandler.HandleRemoveLink)
	})
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the database (flushes the WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
