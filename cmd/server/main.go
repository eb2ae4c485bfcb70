package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anonchat-backend/internal/api"
	"anonchat-backend/internal/api/handlers"
	"anonchat-backend/internal/config"
	"anonchat-backend/internal/match"
	"anonchat-backend/internal/matching"
	"anonchat-backend/internal/metrics"
	"anonchat-backend/internal/notify"
	"anonchat-backend/internal/queue"
	"anonchat-backend/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Initialize storage
	store, err := storage.New(ctx, cfg.Storage.Backend, cfg.Storage.PostgresURL, cfg.Storage.RedisURL)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Redis client for notification fan-out to users connected elsewhere.
	// Without it, delivery falls back to local WebSocket connections only.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.Storage.RedisURL); err == nil {
		redisClient = redis.NewClient(opts)
	} else {
		log.Printf("Invalid REDIS_URL, notifications limited to local connections: %v", err)
	}

	// Initialize notification manager
	notifier := notify.NewManager(redisClient)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	mmMetrics := metrics.NewMetrics(registry)

	// Initialize managers
	queueManager := queue.NewManager(store)
	matchManager := match.NewManager(store)

	// Initialize matching scheduler
	scheduler := matching.NewScheduler(store, queueManager, matchManager, notifier, mmMetrics, matching.Config{
		StatusInterval:     cfg.Matching.StatusInterval,
		SearchTimeout:      cfg.Matching.SearchTimeout,
		ClaimTTL:           cfg.Matching.ClaimTTL,
		JoinAlertThreshold: cfg.Matching.JoinAlertThreshold,
	})

	// Initialize background processor
	processor, err := queue.NewProcessor(scheduler, cfg.Storage.RedisURL, cfg.Matching.SweepInterval)
	if err != nil {
		log.Fatalf("Failed to initialize queue processor: %v", err)
	}
	if err := processor.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue processor: %v", err)
	}
	defer processor.Stop()

	// Initialize handlers
	matchHandler := handlers.NewMatchHandler(scheduler, queueManager, matchManager, notifier)
	profileHandler := handlers.NewProfileHandler(store)
	chatHandler := handlers.NewChatHandler(store, matchManager, notifier)

	// Initialize dependencies
	deps := &api.Dependencies{
		MatchHandler:   matchHandler,
		ProfileHandler: profileHandler,
		ChatHandler:    chatHandler,
		Notifier:       notifier,
		Registry:       registry,
	}

	// Initialize router
	r := api.NewRouter(deps)

	// Server setup
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
