// Package queue adapts the RabbitMQ client to the work item publisher port.
package queue

import (
	"context"

	"github.com/cuongbtq/cep-crawler/internal/workitem"
	"github.com/cuongbtq/cep-crawler/shared/rabbitmq"
)

// Broker is the subset of *rabbitmq.Client the publisher needs
type Broker interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// Publisher sends encoded work items as persistent JSON messages keyed by
// their dedup id
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

func (p *Publisher) Publish(ctx context.Context, msg workitem.Message) error {
	return p.broker.PublishWithRetry(ctx, rabbitmq.Message{
		ID:          msg.ID,
		Body:        msg.Body,
		ContentType: workitem.ContentType,
	})
}
