package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/bootstrap"
	"github.com/cuongbtq/cep-crawler/internal/config"
	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"github.com/cuongbtq/cep-crawler/internal/orchestrator"
	"github.com/cuongbtq/cep-crawler/internal/ratelimit"
	"github.com/cuongbtq/cep-crawler/internal/storage/postgres"
	"github.com/cuongbtq/cep-crawler/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	// Initialize providers and their health monitors
	providers, err := bootstrap.BuildProviders(cfg, nil, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	bootstrap.StartHealthMonitor(ctx, providers.Health, appLogger.Logger)

	// Recording side of the orchestrator; workers never publish
	store := postgres.NewStore(dbClient.GetDB(), appLogger.Component("store"))
	recorder := orchestrator.New(store, nil, nil, appLogger.Component("orchestrator"))

	// Metrics endpoint
	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, appLogger.Logger)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:   appLogger.Component("worker"),
		Consumer: rabbitClient,
		Recorder: recorder,
		Provider: providers.Provider,
		Health:   providers.Health,
		Limiter: ratelimit.New(ratelimit.Config{
			MinInterval:   cfg.Worker.RateLimit.MinInterval,
			MaxConcurrent: cfg.Worker.RateLimit.MaxConcurrent,
		}),
		QueueName:         cfg.RabbitMQ.Queue.Name,
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.RabbitMQ.Consumer.PrefetchCount,
		HealthWaitTimeout: cfg.Worker.HealthWaitTimeout,
	})

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", workerInstance.ID()),
		slog.String("provider", providers.Provider.Name()),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop dispatching and health checks
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// startMetricsServer exposes /metrics on port; a zero port disables it
func startMetricsServer(port int, logger *slog.Logger) *http.Server {
	if port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	logger.Info("Metrics server started", slog.String("address", srv.Addr))
	return srv
}
