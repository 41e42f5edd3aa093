// Package main is the entry point for the PDF Tools API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/config"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/database"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/handlers"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/middleware"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/router"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/jobstore"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/render"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/webhook"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/worker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// lockTTL bounds how long a crashed server can hold a job's edit lock.
const lockTTL = 2 * time.Minute

func main() {
	// Step 1: Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "pdf-tools-api",
	})
	log.Info().Str("version", Version).Msg("🚀 PDF Tools API starting")
	log.Info().
		Str("port", cfg.Port).
		Int("workers", cfg.WorkerCount).
		Str("gin_mode", cfg.GinMode).
		Str("media_root", cfg.MediaRoot).
		Msg("📋 Config loaded")

	os.Setenv("GIN_MODE", cfg.GinMode)

	// Step 2: Job records. PostgreSQL when configured, memory otherwise.
	var repo database.Repository
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("✅ Database connected")

		if err := db.RunMigrations(cfg.MigrationsPath, log); err != nil {
			log.Fatal().Err(err).Msg("❌ Migration failed")
		}
		repo = db
	} else {
		repo = database.NewMemory()
		log.Warn().Msg("⚠️  No DATABASE_URL set, job records are kept in memory")
	}

	// Step 3: Storage and per-job locks
	store := jobstore.New(cfg.MediaRoot)
	if err := os.MkdirAll(store.Root(), 0o755); err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to create media root")
	}

	var locks editor.Locker = jobstore.NewMemoryLocker()
	var lockHealth handlers.Pinger
	if cfg.RedisURL != "" {
		rl, err := jobstore.NewRedisLocker(cfg.RedisURL, lockTTL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
		}
		defer rl.Close()
		locks, lockHealth = rl, rl
		log.Info().Msg("✅ Redis job locks enabled")
	} else {
		log.Info().Msg("🔒 Using in-process job locks (set REDIS_URL to share locks across instances)")
	}

	// Step 4: Create Services
	renderer := render.New(cfg.PreviewZoom)
	editSvc := editor.NewService(editor.NewEngine(log.WithComponent("editor")), store, locks, log)

	// Job event notifications
	var notifier handlers.Notifier
	var webhookService *webhook.Service
	if cfg.WebhookURL != "" {
		webhookService = webhook.New(cfg.WebhookURL, cfg.WebhookSecret, log)
		notifier = webhookService
		log.Info().Msg("✅ Webhook notifications enabled")
	}

	// Step 5: Create and Start Worker Pool
	wp := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, repo, store, renderer, log)
	if notifier != nil {
		wp.SetNotifier(notifier)
	}
	wp.Start()
	defer wp.Stop()

	// Step 6: Setup HTTP Router
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerHour)
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go rateLimiter.Cleanup(cleanupCtx, 10*time.Minute)

	h := handlers.NewHandler(handlers.Deps{
		Repo:           repo,
		Store:          store,
		Queue:          wp,
		Renderer:       renderer,
		Editor:         editSvc,
		Locks:          lockHealth,
		Notifier:       notifier,
		Log:            log.WithComponent("http"),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Version:        Version,
	})
	r := router.Setup(h, rateLimiter, cfg.AllowedOrigins)

	// Step 7: Start the HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // large uploads
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("🌐 Server listening on http://localhost:%s", cfg.Port)
		log.Info().Msgf("📖 API docs: http://localhost:%s/api/docs", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server failed")
		}
	}()

	// Step 8: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("🛑 Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Server forced to shutdown")
	}

	// Workers first, so their final events are queued before deliveries stop
	wp.Stop()
	webhookService.Shutdown()

	log.Info().Msg("👋 Server stopped. Goodbye!")
}
