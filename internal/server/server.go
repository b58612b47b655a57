// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware,
// and routes. It is the composition root: every dependency in the app is
// constructed here (or in main.go) and injected downward, so nothing deeper
// in the tree ever reaches for a global.
//
// DEPENDENCY CHAIN:
//
//	sqlite.DB ──────────────┬→ AuthService ──→ AuthHandler
//	TokenService ───────────┤
//	PasswordService ────────┘
//	sqlite.DB ──────────────┬→ SummaryService → SummaryHandler
//	summarizer.Service ─────┘
//	TokenService + sqlite.DB → auth gate middleware
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/recap/internal/auth"
	"github.com/sakif/recap/internal/handler"
	"github.com/sakif/recap/internal/middleware"
	sqliteRepo "github.com/sakif/recap/internal/repository/sqlite"
	"github.com/sakif/recap/internal/service"
	"github.com/sakif/recap/internal/summarizer"
)

// Config holds server configuration, assembled from environment variables
// in main.go. A struct (instead of individual parameters) means new options
// don't ripple through function signatures.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	// Generative-text API
	OpenRouterAPIKey string
	SummaryModel     string // e.g. "openai/gpt-4o-mini"

	// GitHub OAuth — optional; routes are skipped when unset
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server owns the router and the resources that need closing on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB // owned by the server, closed on shutdown
}

// New creates a Server and wires the entire dependency graph.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to avoid confusion with the
// driver package name.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // clean up if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, builds all services and handlers, and
// registers the route table.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/signup            → create account, issue token
//	POST   /auth/signin            → issue token
//	GET    /auth/github/login      → OAuth redirect        (if configured)
//	GET    /auth/github/callback   → OAuth completion      (if configured)
//	GET    /auth/me                → current user          [auth]
//	POST   /summary/generate       → generate summary      [auth]
//	GET    /summary                → list summaries        [auth]
//	GET    /summary/{id}           → fetch summary         [auth]
//	POST   /summary/save           → save client summary   [auth]
//	DELETE /summary/{id}           → delete summary        [auth]
//
// MIDDLEWARE ORDER MATTERS — middleware executes in registration order:
// RequestID first (so everything downstream can log it), then RealIP,
// Recoverer, and our request logger.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID) // X-Request-ID per request
	s.router.Use(chimiddleware.RealIP)    // real client IP from proxy headers
	s.router.Use(chimiddleware.Recoverer) // panic → 500, not a crash
	s.router.Use(middleware.Logger(s.logger))

	// --- Auth plumbing ---
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	var github *auth.GitHubProvider
	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		github = auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
	} else {
		s.logger.Warn("GitHub OAuth not configured — /auth/github routes disabled")
	}

	// --- Summarization plumbing ---
	genClient := summarizer.NewOpenRouterClient(summarizer.ClientConfig{
		APIKey: s.config.OpenRouterAPIKey,
		Model:  s.config.SummaryModel,
	})
	gen := summarizer.NewService(genClient, s.logger)

	// --- Services and handlers ---
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	summaryService := service.NewSummaryService(s.db, s.db, gen, s.logger)

	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	summaryHandler := handler.NewSummaryHandler(summaryService, s.logger)

	// --- Public auth routes ---
	s.router.Post("/auth/signup", authHandler.HandleSignup)
	s.router.Post("/auth/signin", authHandler.HandleSignin)
	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	// --- Protected routes ---
	// The gate validates the bearer token and syncs the user directory;
	// handlers below it can rely on an identity being in context.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, s.db, s.logger))

		r.Get("/auth/me", authHandler.HandleMe)

		r.Route("/summary", func(r chi.Router) {
			r.Post("/generate", summaryHandler.HandleGenerate)
			r.Get("/", summaryHandler.HandleList)
			r.Post("/save", summaryHandler.HandleSave)
			r.Get("/{id}", summaryHandler.HandleGet)
			r.Delete("/{id}", summaryHandler.HandleDelete)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // generate requests wait on the model API
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
