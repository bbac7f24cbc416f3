package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/tryon-gateway/config"
	"github.com/vnmchuo/tryon-gateway/internal/audit"
	"github.com/vnmchuo/tryon-gateway/internal/auth"
	"github.com/vnmchuo/tryon-gateway/internal/generation"
	"github.com/vnmchuo/tryon-gateway/internal/generator"
	"github.com/vnmchuo/tryon-gateway/internal/generator/gemini"
	"github.com/vnmchuo/tryon-gateway/internal/ledger"
	"github.com/vnmchuo/tryon-gateway/internal/request"
	"github.com/vnmchuo/tryon-gateway/internal/seeder"
	"github.com/vnmchuo/tryon-gateway/internal/telemetry"
	"github.com/vnmchuo/tryon-gateway/internal/usage"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Init logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("tryon-gateway", cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	ctx := context.Background()

	// 4. Init stores and generator (dev mode runs fully in-memory)
	var (
		ledgerStore  ledger.Ledger
		usageStore   usage.Store
		requestStore request.Store
		auditStore   audit.Store
		authStore    auth.Store
		gen          generator.Generator
		authCache    *redis.Client
	)

	if cfg.DevMode {
		logger.Warn().Msg("dev mode: in-memory stores and stub generator")
		memUsage := usage.NewMemoryStore()
		usageStore = memUsage
		ledgerStore = ledger.NewMemoryStore(memUsage)
		requestStore = request.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		gen = &generator.Stub{}
	} else {
		// 4a. Connect PostgreSQL
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ping postgres")
		}
		logger.Info().Msg("PostgreSQL connected")

		// 4b. Connect Redis
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to ping redis")
		}
		logger.Info().Msg("Redis connected")

		ledgerStore = ledger.NewPostgresStore(pool)
		usageStore = usage.NewPostgresStore(pool)
		requestStore = request.NewPostgresStore(pool)
		auditStore = audit.NewPostgresStore(pool)
		authStore = auth.NewPostgresStore(pool)
		authCache = rdb
		gen = generator.WithBreaker(gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel), "gemini")
	}

	// 5. Init auth middleware
	authMiddleware := auth.NewMiddleware(authStore, authCache, logger)

	// 6. Init orchestrator and handlers
	tracer := otel.GetTracerProvider().Tracer("tryon-gateway")
	orch := generation.NewOrchestrator(ledgerStore, requestStore, auditStore, gen, tracer, logger)
	handler := generation.NewHandler(orch, ledgerStore, usageStore, requestStore, logger)
	adminHandler := generation.NewAdminHandler(ledgerStore, logger)

	// 7. Seed demo tenant in dev mode or when RUN_SEED=true
	if cfg.DevMode || os.Getenv("RUN_SEED") == "true" {
		seeder.SeedDemoTenant(ctx, ledgerStore, authStore, logger)
	}

	// 8. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"tryon-gateway"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/v1/generations", handler.HandleGenerate)
		r.Get("/v1/generations", handler.HandleListGenerations)
		r.Get("/v1/generations/{id}", handler.HandleGetGeneration)
		r.Get("/v1/usage", handler.HandleUsage)
		r.Get("/v1/quota", handler.HandleQuota)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdminToken(cfg.AdminToken))
		r.Post("/admin/tenants", adminHandler.HandleCreateTenant)
		r.Post("/admin/tenants/{id}/plan", adminHandler.HandleChangePlan)
	})

	// 9. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Try-on Gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	logger.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("Server stopped")
}
