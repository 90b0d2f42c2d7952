// Package bootstrap builds the infrastructure shared by the api and worker
// services from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/config"
	"github.com/cuongbtq/cep-crawler/internal/health"
	"github.com/cuongbtq/cep-crawler/internal/provider"
	"github.com/cuongbtq/cep-crawler/internal/provider/brasilapi"
	"github.com/cuongbtq/cep-crawler/internal/provider/viacep"
	"github.com/cuongbtq/cep-crawler/shared/logger"
	"github.com/cuongbtq/cep-crawler/shared/postgresql"
	"github.com/cuongbtq/cep-crawler/shared/rabbitmq"
)

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// PostgreSQLConfig maps the database section onto the client config
func PostgreSQLConfig(cfg *config.DatabaseConfig) *postgresql.Config {
	return &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// InitPostgreSQL initializes the PostgreSQL database client
func InitPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(PostgreSQLConfig(cfg), logger)
}

// RabbitMQConfig maps the rabbitmq section onto the client config
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		QueueType:          cfg.Queue.Type,
		DeliveryLimit:      cfg.Queue.DeliveryLimit,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// InitRabbitMQ initializes the RabbitMQ client
func InitRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(RabbitMQConfig(cfg), logger)
}

// pinger is a provider that can check its own upstream
type pinger interface {
	provider.Provider
	Ping(ctx context.Context) error
}

// Providers is the provider chain plus the health view over it
type Providers struct {
	Provider provider.Provider
	Health   *health.Composite
	Monitors []*health.Monitor
}

// BuildProviders creates every enabled provider, one health monitor per
// provider and the failover chain in configured order. A nil client gives
// each provider its own default HTTP client.
func BuildProviders(cfg *config.Config, client provider.HTTPClient, logger *slog.Logger) (*Providers, error) {
	enabled := cfg.EnabledProviders()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no provider enabled")
	}

	out := &Providers{
		Health: health.NewComposite(cfg.Health.PollInterval, logger.With(slog.String("component", "health"))),
	}

	members := make([]provider.Member, 0, len(enabled))
	for _, pc := range enabled {
		p, err := newProvider(pc, client, logger)
		if err != nil {
			return nil, err
		}

		monitor := health.NewMonitor(health.Config{
			Name:             p.Name(),
			FailureThreshold: cfg.Health.FailureThreshold,
			CheckInterval:    cfg.Health.CheckInterval,
			CheckTimeout:     cfg.Health.CheckTimeout,
			PollInterval:     cfg.Health.PollInterval,
		}, p.Ping, logger)

		out.Health.Register(monitor)
		out.Monitors = append(out.Monitors, monitor)
		members = append(members, provider.Member{Provider: p, Health: monitor})
	}

	if len(members) == 1 {
		out.Provider = members[0].Provider
	} else {
		out.Provider = provider.NewFailover(logger, members...)
	}

	return out, nil
}

func newProvider(pc config.ProviderConfig, client provider.HTTPClient, logger *slog.Logger) (pinger, error) {
	switch pc.Kind {
	case config.ProviderViaCEP:
		return viacep.New(viacep.Config{
			BaseURL:   pc.BaseURL,
			TestCEP:   pc.TestCEP,
			Timeout:   pc.Timeout,
			UserAgent: pc.UserAgent,
		}, client, logger), nil
	case config.ProviderBrasilAPI:
		return brasilapi.New(brasilapi.Config{
			BaseURL:   pc.BaseURL,
			TestCEP:   pc.TestCEP,
			Timeout:   pc.Timeout,
			UserAgent: pc.UserAgent,
		}, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", pc.Kind)
	}
}

// StartHealthMonitor runs one check synchronously so the service starts with
// a real verdict, then keeps probing in the background until ctx is done.
func StartHealthMonitor(ctx context.Context, composite *health.Composite, logger *slog.Logger) {
	if composite.CheckHealth(ctx) {
		logger.Info("Initial provider health check passed",
			slog.Any("healthy", composite.HealthyProviders()),
		)
	} else {
		logger.Warn("No provider healthy at startup",
			slog.String("status", composite.Status().String()),
		)
	}

	go composite.Run(ctx)
}
