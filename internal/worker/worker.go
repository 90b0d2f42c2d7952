package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/health"
	"github.com/cuongbtq/cep-crawler/internal/provider"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Defaults applied when Config leaves a field zero
const (
	DefaultConcurrency   = 1
	DefaultPrefetchCount = 1
	DefaultHealthWait    = 30 * time.Second
)

// Consumer is the broker side the worker reads from
type Consumer interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Recorder is the orchestrator's recording side
type Recorder interface {
	MarkRunning(ctx context.Context, jobID string)
	ItemCompleted(ctx context.Context, jobID, itemKey string) (bool, error)
	// CompleteItem records the outcome and advances progress atomically
	CompleteItem(ctx context.Context, outcome domain.ItemOutcome) (bool, error)
}

// Limiter gates provider calls
type Limiter interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Consumer          Consumer
	Recorder          Recorder
	Provider          provider.Provider
	Health            health.Checker
	Limiter           Limiter
	QueueName         string
	Concurrency       int
	PrefetchCount     int
	HealthWaitTimeout time.Duration
}

// Worker consumes CEP work items and records their outcomes
type Worker struct {
	logger            *slog.Logger
	consumer          Consumer
	recorder          Recorder
	provider          provider.Provider
	health            health.Checker
	limiter           Limiter
	queueName         string
	workerID          string
	concurrency       int
	prefetchCount     int
	healthWaitTimeout time.Duration

	jobsChan chan amqp.Delivery
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = DefaultPrefetchCount
	}
	wait := cfg.HealthWaitTimeout
	if wait <= 0 {
		wait = DefaultHealthWait
	}

	workerID := fmt.Sprintf("worker-%s", uuid.NewString()[:8])

	return &Worker{
		logger:            cfg.Logger.With(slog.String("worker_id", workerID)),
		consumer:          cfg.Consumer,
		recorder:          cfg.Recorder,
		provider:          cfg.Provider,
		health:            cfg.Health,
		limiter:           cfg.Limiter,
		queueName:         cfg.QueueName,
		workerID:          workerID,
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		healthWaitTimeout: wait,
		jobsChan:          make(chan amqp.Delivery),
		stopChan:          make(chan struct{}),
	}
}

// ID returns the worker id used as consumer tag
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes until ctx is canceled or the delivery channel closes, then
// waits for in-flight items to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
		slog.String("provider", w.provider.Name()),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	// in-flight items finish with their own deadlines after shutdown starts
	w.spawnWorkerPool(context.WithoutCancel(ctx))

	w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker drained")
	return nil
}

// Stop asks the dispatcher to stop and waits for the pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
