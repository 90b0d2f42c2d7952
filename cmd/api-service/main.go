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

	"github.com/cuongbtq/cep-crawler/internal/api/handler"
	"github.com/cuongbtq/cep-crawler/internal/api/router"
	"github.com/cuongbtq/cep-crawler/internal/bootstrap"
	"github.com/cuongbtq/cep-crawler/internal/config"
	"github.com/cuongbtq/cep-crawler/internal/orchestrator"
	"github.com/cuongbtq/cep-crawler/internal/queue"
	"github.com/cuongbtq/cep-crawler/internal/storage/postgres"
	"github.com/cuongbtq/cep-crawler/migrations"
	"github.com/gin-gonic/gin"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL client
	dbClient, err := bootstrap.InitPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.AutoMigrate {
		if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Initialize providers and their health monitors
	providers, err := bootstrap.BuildProviders(cfg, nil, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	bootstrap.StartHealthMonitor(ctx, providers.Health, appLogger.Logger)

	// Wire the orchestrator
	store := postgres.NewStore(dbClient.GetDB(), appLogger.Component("store"))
	orch := orchestrator.New(
		store,
		queue.NewPublisher(rabbitClient),
		providers.Health,
		appLogger.Component("orchestrator"),
		orchestrator.WithMaxItems(cfg.Crawl.MaxItemsPerJob),
	)

	// Initialize router
	checks := []handler.DependencyCheck{
		{Name: "database", Check: dbClient.HealthCheck},
		{Name: "broker", Check: rabbitClient.HealthCheck},
	}
	r := initRouter(cfg, appLogger.Logger, orch, providers.Health, checks)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed to start",
			slog.Any("error", err),
		)
		return err
	}

	// Stop the health monitor loops
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, crawls handler.CrawlService, reporter handler.HealthReporter, checks []handler.DependencyCheck) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:          logger,
		ServiceName:     cfg.App.Name,
		Crawls:          crawls,
		Health:          reporter,
		Checks:          checks,
		DefaultPageSize: cfg.Crawl.DefaultPageSize,
		MaxPageSize:     cfg.Crawl.MaxPageSize,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
