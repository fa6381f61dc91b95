// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides:
// - Which key-value store backs the ledgers (SQLite file or Redis)
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go reads the environment into Config, then
//
//	Server.New() creates: store → IntakeService / LeaderboardService / relay.Hub
//	                      → handlers → routes
//
// This is the "composition root": every dependency is built here and passed
// down explicitly. No package reaches for a global.
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

	"github.com/sakif/intake-tracker/internal/auth"
	"github.com/sakif/intake-tracker/internal/handler"
	"github.com/sakif/intake-tracker/internal/inference"
	"github.com/sakif/intake-tracker/internal/metrics"
	"github.com/sakif/intake-tracker/internal/middleware"
	"github.com/sakif/intake-tracker/internal/relay"
	"github.com/sakif/intake-tracker/internal/repository"
	redisRepo "github.com/sakif/intake-tracker/internal/repository/redis"
	sqliteRepo "github.com/sakif/intake-tracker/internal/repository/sqlite"
	"github.com/sakif/intake-tracker/internal/service"
)

// Store drivers accepted in Config.StoreDriver.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds server configuration. main.go fills it from the environment.
type Config struct {
	Port int

	StoreDriver string // "sqlite" (default) or "redis"
	DBPath      string // SQLite file, used by the sqlite driver
	RedisURL    string // e.g. redis://localhost:6379/0, used by the redis driver

	// APISecret guards every /api route. It may be plaintext or a bcrypt hash.
	APISecret string
	// RelaySigningKey signs relay tickets (HMAC, at least 16 characters).
	RelaySigningKey string
	// RelayAllowedOrigins restricts browser origins for relay sockets. Empty = any.
	RelayAllowedOrigins []string

	Inference        inference.HTTPConfig
	SystemPromptFile string // optional override of the built-in prompt template

	TargetZone          *time.Location // fixed-offset zone for weekday and meal-type views
	SerializeUserWrites bool
	IntakeRatePerMinute int
	// AuthFailuresPerMinute is how many wrong API secrets one client IP may
	// present per minute before it gets 429 without a bcrypt check.
	AuthFailuresPerMinute int
}

// DefaultAuthFailuresPerMinute applies when Config.AuthFailuresPerMinute is unset.
const DefaultAuthFailuresPerMinute = 10

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store connection, the relay hub, and the rate limiter's
// sweep goroutine. Start() releases all three on shutdown.
type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	store   repository.KVStore
	metrics *metrics.Metrics
	hub     *relay.Hub

	stopLimiter context.CancelFunc
}

// New creates a Server, opening the configured store.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server around an already-open store. Tests pass an
// in-memory SQLite database.
func NewWithStore(cfg Config, store repository.KVStore, logger *slog.Logger) (*Server, error) {
	if cfg.TargetZone == nil {
		cfg.TargetZone = time.UTC
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		if s.stopLimiter != nil {
			s.stopLimiter()
		}
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(cfg Config) (repository.KVStore, error) {
	switch cfg.StoreDriver {
	case "", DriverSQLite:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	case DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := redisRepo.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                              → liveness + store check
// GET    /metrics                              → Prometheus scrape
// POST   /api/intakes                          → log a meal (rate limited)
// GET    /api/users                            → users with a ledger
// GET    /api/users/{user}/intakes             → whole ledger
// DELETE /api/users/{user}/intakes             → reset ledger
// DELETE /api/users/{user}/intakes/{date}      → remove one date-key
// GET    /api/users/{user}/summary?month=      → monthly summary
// GET    /api/users/{user}/today               → records on today's weekday
// GET    /api/leaderboard?month=               → monthly calorie ranking
// POST   /api/relay/tickets                    → trade the secret for a relay ticket
// GET    /api/relay/presence                   → who is connected
// GET    /relay/ws?ticket=                     → relay socket
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, RealIP: before anything reads the client address
// 2. Recoverer: catches panics and returns 500 instead of crashing
// 3. Logger, Metrics: see the final status of every request
// Everything under /api additionally requires the shared secret; a client
// IP that keeps presenting a wrong one is cut off before bcrypt runs.
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Collaborators ===
	secret, err := auth.NewSecretVerifier(cfg.APISecret)
	if err != nil {
		return fmt.Errorf("api secret: %w", err)
	}
	tickets, err := auth.NewTicketService(cfg.RelaySigningKey)
	if err != nil {
		return fmt.Errorf("relay signing key: %w", err)
	}

	prompt, err := s.loadPrompt()
	if err != nil {
		return err
	}
	llm := inference.NewHTTPClient(cfg.Inference, s.logger)

	intakeService := service.NewIntakeService(s.store, llm, prompt, s.metrics, s.logger, service.IntakeOptions{
		Location:            cfg.TargetZone,
		InferenceTimeout:    cfg.Inference.Timeout,
		SerializeUserWrites: cfg.SerializeUserWrites,
	})
	leaderboardService := service.NewLeaderboardService(s.store, s.logger)
	s.hub = relay.NewHub(s.store, s.metrics, s.logger)

	limiterCtx, stop := context.WithCancel(context.Background())
	s.stopLimiter = stop
	limiter := middleware.NewRateLimiter(limiterCtx, cfg.IntakeRatePerMinute)
	authFailures := cfg.AuthFailuresPerMinute
	if authFailures <= 0 {
		authFailures = DefaultAuthFailuresPerMinute
	}
	authGuard := middleware.NewRateLimiter(limiterCtx, authFailures)

	intakeHandler := handler.NewIntakeHandler(intakeService, s.logger)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService)
	relayHandler := handler.NewRelayHandler(s.hub, tickets, cfg.RelayAllowedOrigins, s.logger)
	healthHandler := handler.NewHealthHandler(s.store)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	// === Operational Routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireSecret(secret, authGuard))

		r.With(limiter.Middleware).Post("/intakes", intakeHandler.HandleLog)

		r.Get("/users", intakeHandler.HandleUsers)
		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/intakes", intakeHandler.HandleLedger)
			r.Delete("/intakes", intakeHandler.HandleReset)
			r.Delete("/intakes/{date}", intakeHandler.HandleDeleteDay)
			r.Get("/summary", intakeHandler.HandleSummary)
			r.Get("/today", intakeHandler.HandleToday)
		})

		r.Get("/leaderboard", leaderboardHandler.HandleLeaderboard)

		r.Post("/relay/tickets", relayHandler.HandleIssueTicket)
		r.Get("/relay/presence", relayHandler.HandlePresence)
	})

	// === Relay Socket ===
	// Browsers cannot set headers on a WebSocket upgrade, so the socket
	// authenticates with the ticket in the query string instead.
	s.router.With(auth.RequireTicket(tickets)).Get("/relay/ws", relayHandler.HandleConnect)

	return nil
}

func (s *Server) loadPrompt() (*inference.Prompt, error) {
	if s.config.SystemPromptFile == "" {
		return inference.NewPrompt("", s.config.TargetZone)
	}
	prompt, err := inference.LoadPrompt(s.config.SystemPromptFile, s.config.TargetZone)
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}
	return prompt, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases everything the server owns: relay sockets, the limiter's
// sweep goroutine, and the store.
func (s *Server) Close() error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
	return s.store.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close relay sockets (Shutdown does not track hijacked connections)
// 4. Close the store (flushes SQLite's WAL or returns Redis connections)
//
// The write timeout has to outlast one inference call, or slow intakes would
// be cut off mid-response.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing server resources", slog.String("error", err.Error()))
		}
	}()

	writeTimeout := 15 * time.Second
	if t := s.config.Inference.Timeout; t > 0 {
		writeTimeout += t
	} else {
		writeTimeout += service.DefaultInferenceTimeout
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(s.hub.Close)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.storeDescription()),
			slog.String("inference", s.config.Inference.BaseURL),
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

func (s *Server) storeDescription() string {
	if s.config.StoreDriver == DriverRedis {
		return DriverRedis
	}
	return DriverSQLite + ":" + s.config.DBPath
}
