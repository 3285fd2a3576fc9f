// Skill Worlds - guided career selection server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/skill-worlds/internal/api"
	"github.com/ashureev/skill-worlds/internal/catalog"
	"github.com/ashureev/skill-worlds/internal/chatlog"
	"github.com/ashureev/skill-worlds/internal/chatsocket"
	"github.com/ashureev/skill-worlds/internal/config"
	"github.com/ashureev/skill-worlds/internal/dashboard"
	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/gateway"
	"github.com/ashureev/skill-worlds/internal/guide"
	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/ashureev/skill-worlds/internal/metrics"
	"github.com/ashureev/skill-worlds/internal/middleware"
	"github.com/ashureev/skill-worlds/internal/shared"
	"github.com/ashureev/skill-worlds/internal/store"
	"github.com/ashureev/skill-worlds/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// transcriptSink forwards chatbot messages to the NDJSON transcript logger.
type transcriptSink struct {
	log chatlog.Logger
}

func (s transcriptSink) Message(sess domain.Session, msg domain.ChatMessage) {
	s.log.Log(chatlog.MessageEvent(sess, "chat", msg))
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		slog.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog loaded", "careers", len(cat.Careers()))

	m := metrics.New()
	retry := shared.RetryPolicy{
		MaxRetries: cfg.Retry.DatabaseMaxRetries,
		BaseDelay:  cfg.Retry.DatabaseRetryBaseDelay,
	}
	gw := gateway.New(repo, gateway.WithRetry(retry), gateway.WithMetrics(m))

	transcripts := chatlog.Noop()
	if cfg.Transcript.Enabled {
		transcripts, err = chatlog.New(chatlog.Config{
			Enabled:   true,
			Dir:       cfg.Transcript.Dir,
			QueueSize: cfg.Transcript.QueueSize,
		}, logger, m)
		if err != nil {
			slog.Error("Failed to initialize transcript logger", "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Warn("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Initialize services.
	tokens := identity.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration, repo)
	hasher := identity.PasswordHasher{Cost: cfg.Password.BcryptCost, Pepper: cfg.Password.Pepper}
	accounts := identity.NewService(repo, tokens, hasher, retry)

	flows := guide.NewRegistry(guide.Deps{
		Catalog:    cat,
		Saver:      gw,
		ThinkDelay: cfg.ThinkDelay,
		Metrics:    m,
		Transcript: transcriptSink{log: transcripts},
	})
	hub := chatsocket.NewHub()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)

	// Initialize handlers.
	apiHandler := api.NewHandler(api.Deps{
		Accounts:     accounts,
		Catalog:      cat,
		Flows:        flows,
		Dashboard:    dashboard.NewService(gw, cat),
		Sockets:      hub,
		SecureCookie: !cfg.IsDevelopment(),
	})
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	wsHandler := chatsocket.NewHandler(flows, hub, limiter, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", metrics.Handler())

	apiHandler.RegisterRoutes(r, tokens, limiter.Middleware)

	// WebSocket endpoint.
	r.With(identity.Middleware(tokens)).Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	// Start sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	guide.StartSweeper(ctx, flows, guide.SweeperConfig{
		TTL:    cfg.FlowIdleTTL,
		Tokens: repo,
		Retry:  retry,
		OnEvict: func(userID, sessionID string) {
			hub.Close(domain.Session{UserID: userID, SessionID: sessionID}, "flow expired")
		},
	})

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}
