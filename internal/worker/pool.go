package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop processes deliveries until jobsChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for delivery := range w.jobsChan {
		err := w.processDelivery(ctx, delivery)
		w.settle(workerName, delivery, err)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}

// settle ACKs or NACKs a delivery based on the processing result
func (w *Worker) settle(workerName string, delivery amqp.Delivery, err error) {
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("message_id", delivery.MessageId),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	// Smart requeue decision based on error type
	requeue := w.shouldRequeueJob(err)

	w.logger.Warn("Item processing did not complete",
		slog.String("worker_name", workerName),
		slog.String("message_id", delivery.MessageId),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)

	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("message_id", delivery.MessageId),
			slog.Any("error", nackErr),
		)
	}
}

// shouldRequeueJob determines if a delivery should be requeued based on the
// error type. Only errors marked retryable go back to the queue.
func (w *Worker) shouldRequeueJob(err error) bool {
	return domain.IsRetryable(err)
}
