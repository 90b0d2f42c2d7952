package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/health"
)

// Pagination bounds applied when the config leaves them unset
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// CrawlService is the producer side of the orchestrator
type CrawlService interface {
	CreateJob(ctx context.Context, rangeStart, rangeEnd string) (string, int, error)
	GetStatus(ctx context.Context, jobID string) (*domain.Job, error)
	GetResults(ctx context.Context, jobID string, page, pageSize int) (*domain.ResultPage, error)
}

// HealthReporter exposes the aggregated provider health
type HealthReporter interface {
	IsHealthy() bool
	Statuses() []health.Status
	HealthyProviders() []string
	UnhealthyProviders() []string
}

// DependencyCheck checks one backing service; a nil error means reachable
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger          *slog.Logger
	ServiceName     string
	Crawls          CrawlService
	Health          HealthReporter
	Checks          []DependencyCheck
	DefaultPageSize int
	MaxPageSize     int
}

// CrawlHandler handles crawl-related HTTP requests
type CrawlHandler struct {
	logger          *slog.Logger
	crawls          CrawlService
	defaultPageSize int
	maxPageSize     int
}

// NewCrawlHandler creates a new CrawlHandler instance
func NewCrawlHandler(deps *Dependencies) *CrawlHandler {
	h := &CrawlHandler{
		logger:          deps.Logger,
		crawls:          deps.Crawls,
		defaultPageSize: deps.DefaultPageSize,
		maxPageSize:     deps.MaxPageSize,
	}
	if h.maxPageSize <= 0 {
		h.maxPageSize = MaxPageSize
	}
	if h.defaultPageSize <= 0 || h.defaultPageSize > h.maxPageSize {
		h.defaultPageSize = min(DefaultPageSize, h.maxPageSize)
	}
	return h
}

// HealthHandler reports service, backing service and provider health
type HealthHandler struct {
	logger  *slog.Logger
	service string
	health  HealthReporter
	checks  []DependencyCheck
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	l := deps.Logger
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &HealthHandler{
		logger:  l,
		service: deps.ServiceName,
		health:  deps.Health,
		checks:  deps.Checks,
	}
}
