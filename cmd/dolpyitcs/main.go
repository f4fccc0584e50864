package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/BiliTheKid/dolpyitcs/internal/aggregate"
	"github.com/BiliTheKid/dolpyitcs/internal/config"
	"github.com/BiliTheKid/dolpyitcs/internal/dlq"
	"github.com/BiliTheKid/dolpyitcs/internal/handlers"
	"github.com/BiliTheKid/dolpyitcs/internal/logging"
	"github.com/BiliTheKid/dolpyitcs/internal/ratelimit"
	"github.com/BiliTheKid/dolpyitcs/internal/server"
	"github.com/BiliTheKid/dolpyitcs/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("dolpyitcs"))
	logging.SetDefault(logger)

	slog.Info("Starting analytics collector",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Run DB migrations if configured
	if cfg.Database.URL != "" {
		slog.Info("Running database migrations")
		m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
		if err != nil {
			slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			slog.Error("Failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("Database migrations completed")
	}

	// Initialize the event store. Without a database URL the collector runs
	// on the in-memory store: useful for development, but events do not
	// survive a restart.
	var eventStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(context.Background(), cfg.Database.URL)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		eventStore = pg
		slog.Info("Connected to Postgres event store")
	} else {
		eventStore = store.NewMemoryStore()
		slog.Warn("No database configured, using in-memory event store (events will not survive a restart)")
	}
	defer eventStore.Close()

	// Initialize rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting",
				slog.String("error", err.Error()))
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow))
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		slog.Info("Rate limiting disabled")
	}
	defer rateLimiter.Close()

	// Initialize Dead Letter Queue
	var dlqWriter dlq.Writer
	if cfg.DLQ.Enabled {
		switch cfg.DLQ.Backend {
		case "jetstream":
			jsDLQ, err := dlq.NewJetStreamQueue(context.Background(), cfg.DLQ.NatsURL)
			if err != nil {
				log.Fatalf("Failed to initialize JetStream DLQ: %v", err)
			}
			dlqWriter = jsDLQ
			slog.Info("Dead letter queue enabled", slog.String("backend", "jetstream"), slog.String("nats", cfg.DLQ.NatsURL))
		case "file", "":
			fileDLQ, err := dlq.NewFileQueue(cfg.DLQ.Path)
			if err != nil {
				log.Fatalf("Failed to initialize file DLQ: %v", err)
			}
			dlqWriter = fileDLQ
			slog.Info("Dead letter queue enabled", slog.String("backend", "file"), slog.String("path", cfg.DLQ.Path))
		default:
			log.Fatalf("Unknown DLQ backend: %s (supported: file, jetstream)", cfg.DLQ.Backend)
		}
		defer dlqWriter.Close()
	} else {
		slog.Info("Dead letter queue disabled")
	}

	// Aggregation service and HTTP surface
	aggService := aggregate.New(eventStore, logger, cfg.Aggregation.TopN, cfg.Aggregation.CacheTTL)
	handler := handlers.New(
		eventStore,
		aggService,
		rateLimiter,
		dlqWriter,
		logger,
		int64(cfg.Ingestion.MaxEventSize),
		cfg.Aggregation.QueryTimeout,
	)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slog.Info("Server stopped")
}
