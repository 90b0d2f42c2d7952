package worker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// prefetch_count: number of unacknowledged messages per consumer
	if err := w.consumer.Qos(w.prefetchCount); err != nil {
		return nil, err
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	// Consumer tag is the worker ID; deliveries are acknowledged manually
	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher forwards deliveries to the worker pool until ctx is
// canceled, Stop is called or the delivery channel closes
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			select {
			case w.jobsChan <- delivery:
				w.logger.Debug("Delivery dispatched to worker pool",
					slog.String("message_id", delivery.MessageId),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-w.stopChan:
				w.requeueOnShutdown(delivery)
				return
			case <-ctx.Done():
				w.requeueOnShutdown(delivery)
				return
			}
		}
	}
}

// requeueOnShutdown hands an undispatched delivery back to the broker
func (w *Worker) requeueOnShutdown(delivery amqp.Delivery) {
	w.logger.Info("Message dispatcher stopped while dispatching")
	// NACK the message so it can be reprocessed
	if nackErr := delivery.Nack(false, true); nackErr != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.Any("error", nackErr),
		)
	}
}
