package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Provider kinds
const (
	ProviderViaCEP    = "viacep"
	ProviderBrasilAPI = "brasilapi"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	RabbitMQ  RabbitMQConfig   `yaml:"rabbitmq"`
	Logging   LoggingConfig    `yaml:"logging"`
	App       AppConfig        `yaml:"app"`
	Worker    WorkerConfig     `yaml:"worker"`
	Providers []ProviderConfig `yaml:"providers"`
	Health    HealthConfig     `yaml:"health"`
	Crawl     CrawlConfig      `yaml:"crawl"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name               string `yaml:"name"`
	Durable            bool   `yaml:"durable"`
	AutoDelete         bool   `yaml:"auto_delete"`
	Exclusive          bool   `yaml:"exclusive"`
	Type               string `yaml:"type"`
	DeliveryLimit      int    `yaml:"delivery_limit"`
	DeadLetterExchange string `yaml:"dead_letter_exchange"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	NoColor      bool   `yaml:"no_color"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int             `yaml:"concurrency"`
	HealthWaitTimeout time.Duration   `yaml:"health_wait_timeout"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`
	MetricsPort       int             `yaml:"metrics_port"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds the global provider call gate
type RateLimitConfig struct {
	MinInterval   time.Duration `yaml:"min_interval"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// ProviderConfig describes one external CEP provider. Providers are tried in
// the order listed.
type ProviderConfig struct {
	Kind      string        `yaml:"kind"`
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	TestCEP   string        `yaml:"test_cep"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// HealthConfig holds provider health monitor settings
type HealthConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	CheckInterval    time.Duration `yaml:"check_interval"`
	CheckTimeout     time.Duration `yaml:"check_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	WaitTimeout      time.Duration `yaml:"wait_timeout"`
}

// CrawlConfig holds crawl request limits
type CrawlConfig struct {
	MaxItemsPerJob  int `yaml:"max_items_per_job"`
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// Load reads and parses the configuration file, then applies defaults and
// environment overrides
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills zero values with the service defaults
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.ShutdownTimeout, 30*time.Second)
	setDefault(&c.Database.SSLMode, "disable")
	setDefault(&c.RabbitMQ.Exchange.Type, "direct")
	setDefault(&c.RabbitMQ.Consumer.PrefetchCount, 1)
	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "console")
	setDefault(&c.Logging.Output, "stdout")

	setDefault(&c.Worker.Concurrency, 1)
	setDefault(&c.Worker.HealthWaitTimeout, 30*time.Second)
	setDefault(&c.Worker.ShutdownTimeout, 30*time.Second)
	setDefault(&c.Worker.RateLimit.MinInterval, 350*time.Millisecond)
	setDefault(&c.Worker.RateLimit.MaxConcurrent, 1)

	setDefault(&c.Health.FailureThreshold, 3)
	setDefault(&c.Health.CheckInterval, 60*time.Second)
	setDefault(&c.Health.CheckTimeout, 5*time.Second)
	setDefault(&c.Health.PollInterval, 5*time.Second)
	setDefault(&c.Health.WaitTimeout, 30*time.Second)

	setDefault(&c.Crawl.MaxItemsPerJob, 1000)
	setDefault(&c.Crawl.DefaultPageSize, 50)
	setDefault(&c.Crawl.MaxPageSize, 100)

	for i := range c.Providers {
		p := &c.Providers[i]
		p.Kind = strings.ToLower(p.Kind)
		setDefault(&p.Timeout, 5*time.Second)
		setDefault(&p.UserAgent, "CEP-Crawler/1.0")
		setDefault(&p.TestCEP, "01001000")
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// applyEnvOverrides lets deployments inject hosts and secrets without
// editing the YAML file
func (c *Config) applyEnvOverrides() error {
	overrideString(&c.Database.Host, "DB_HOST")
	overrideString(&c.Database.User, "DB_USER")
	overrideString(&c.Database.Password, "DB_PASSWORD")
	overrideString(&c.Database.Database, "DB_NAME")
	overrideString(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	overrideString(&c.RabbitMQ.User, "RABBITMQ_USER")
	overrideString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	overrideString(&c.Logging.Level, "LOG_LEVEL")

	if err := overrideInt(&c.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}
	if err := overrideInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	if err := overrideInt(&c.Worker.Concurrency, "WORKER_CONCURRENCY"); err != nil {
		return err
	}
	return nil
}

func overrideString(field *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*field = v
	}
}

func overrideInt(field *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*field = n
	return nil
}

// EnabledProviders returns the enabled providers in configured order
func (c *Config) EnabledProviders() []ProviderConfig {
	var out []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the sections shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return c.validateProviders()
}

func (c *Config) validateProviders() error {
	enabled := c.EnabledProviders()
	if len(enabled) == 0 {
		return errors.New("at least one provider must be enabled")
	}

	for _, p := range enabled {
		switch p.Kind {
		case ProviderViaCEP, ProviderBrasilAPI:
		default:
			return fmt.Errorf("unknown provider kind: %q", p.Kind)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.Kind)
		}
	}

	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health failure_threshold must be greater than 0")
	}

	return nil
}

// ValidateAPIConfig checks the configuration of the API service
func (c *Config) ValidateAPIConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Crawl.MaxItemsPerJob <= 0 {
		return fmt.Errorf("crawl max_items_per_job must be greater than 0")
	}

	if c.Crawl.DefaultPageSize <= 0 || c.Crawl.DefaultPageSize > c.Crawl.MaxPageSize {
		return fmt.Errorf("crawl default_page_size must be between 1 and max_page_size (%d)", c.Crawl.MaxPageSize)
	}

	return nil
}

// ValidateWorkerConfig checks the configuration of the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.RateLimit.MinInterval <= 0 {
		return fmt.Errorf("worker rate_limit.min_interval must be greater than 0")
	}

	if c.Worker.RateLimit.MaxConcurrent <= 0 {
		return fmt.Errorf("worker rate_limit.max_concurrent must be greater than 0")
	}

	if c.Worker.MetricsPort != 0 && (c.Worker.MetricsPort < MinPort || c.Worker.MetricsPort > MaxPort) {
		return fmt.Errorf("invalid worker metrics port: %d (must be between %d and %d)", c.Worker.MetricsPort, MinPort, MaxPort)
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}
