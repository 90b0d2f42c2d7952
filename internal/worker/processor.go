package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/cep-crawler/internal/domain"
	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"github.com/cuongbtq/cep-crawler/internal/provider"
	"github.com/cuongbtq/cep-crawler/internal/workitem"
	amqp "github.com/rabbitmq/amqp091-go"
)

// processDelivery handles one work item. A nil return means ACK; a retryable
// error means NACK with requeue. Outcomes are persisted before returning.
func (w *Worker) processDelivery(ctx context.Context, delivery amqp.Delivery) error {
	// Step 1: Decode the work item
	item, err := workitem.Decode(delivery.Body)
	if err != nil {
		metrics.ObserveItem(metrics.OutcomeDropped)
		w.logger.Error("Dropping undecodable work item",
			slog.String("message_id", delivery.MessageId),
			slog.String("body", string(delivery.Body)),
			slog.Any("error", err),
		)
		return nil
	}

	logger := w.logger.With(
		slog.String("crawl_id", item.JobID),
		slog.String("cep", item.ItemKey),
	)
	logger.Debug("Processing work item")

	// Step 2: First item observed moves the job to running
	w.recorder.MarkRunning(ctx, item.JobID)

	// Step 3: A redelivery of a completed item spends no quota
	done, err := w.recorder.ItemCompleted(ctx, item.JobID, item.ItemKey)
	if err != nil {
		logger.Warn("Failed to look up item result, fetching anyway", slog.Any("error", err))
	}
	if done {
		metrics.ObserveItem(metrics.OutcomeDuplicate)
		logger.Info("Item already completed, skipping fetch")
		return nil
	}

	// Step 4: Do not spend quota while every provider is down
	if w.health != nil && !w.health.IsHealthy() {
		logger.Warn("No healthy provider, waiting before fetch",
			slog.Duration("timeout", w.healthWaitTimeout),
		)
		if err := w.health.WaitForHealthy(ctx, w.healthWaitTimeout); err != nil {
			return domain.NewRetryableError(err)
		}
	}

	// Step 5: Fetch under the global rate limit
	var result provider.Result
	err = w.limiter.Do(ctx, func(ctx context.Context) error {
		result = w.provider.Fetch(ctx, item.ItemKey)
		return nil
	})
	if err != nil {
		return domain.NewRetryableError(err)
	}

	// Step 6: Classify, persist, then decide ack/nack
	outcome, label, settleErr := classify(item, result)

	recorded, err := w.recorder.CompleteItem(ctx, outcome)
	if err != nil {
		logger.Error("Failed to persist item outcome", slog.Any("error", err))
		return domain.NewRetryableError(err)
	}
	if !recorded {
		// a previous delivery already accounted for this item
		metrics.ObserveItem(metrics.OutcomeDuplicate)
		return nil
	}

	metrics.ObserveItem(label)
	switch label {
	case metrics.OutcomeSuccess:
		logger.Info("CEP fetched")
	case metrics.OutcomeNotFound:
		logger.Info("CEP not found")
	default:
		logger.Warn("CEP fetch failed",
			slog.String("error", result.Error),
			slog.Int("status", result.StatusCode),
			slog.Bool("rate_limited", result.RateLimited),
		)
	}

	if errors.Is(settleErr, domain.ErrItemNotFound) {
		// terminal: the key does not exist upstream
		return nil
	}
	return settleErr
}

// classify maps a provider result to the outcome to persist, a metrics label
// and the error that drives the ack/nack decision
func classify(item workitem.Item, result provider.Result) (domain.ItemOutcome, string, error) {
	outcome := domain.ItemOutcome{JobID: item.JobID, ItemKey: item.ItemKey}

	switch {
	case result.NotFound:
		outcome.ErrorMessage = domain.MessageItemNotFound
		return outcome, metrics.OutcomeNotFound, fmt.Errorf("%w: %s", domain.ErrItemNotFound, item.ItemKey)

	case result.RateLimited:
		outcome.ErrorMessage = result.Error
		return outcome, metrics.OutcomeRateLimited,
			domain.NewRetryableError(fmt.Errorf("%w: %s", domain.ErrItemTransientFailure, result.Error))

	case !result.Success:
		outcome.ErrorMessage = result.Error
		if outcome.ErrorMessage == "" {
			outcome.ErrorMessage = domain.MessageFetchError
		}
		return outcome, metrics.OutcomeError,
			domain.NewRetryableError(fmt.Errorf("%w: %s", domain.ErrItemTransientFailure, outcome.ErrorMessage))

	default:
		outcome.Success = true
		outcome.Payload = result.Payload
		return outcome, metrics.OutcomeSuccess, nil
	}
}
