package amqp

import (
	"context"
	"errors"
	"fmt"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

// QueueSource consumes bids from a durable RabbitMQ queue with manual acks.
type QueueSource struct {
	channel  *amqp.Channel
	queue    string
	consumer string
	log      logger.Logger
}

func NewQueueSource(conn *amqp.Connection, queue, consumer string, prefetch int, log logger.Logger) (*QueueSource, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &QueueSource{
		channel:  ch,
		queue:    queue,
		consumer: consumer,
		log:      log,
	}, nil
}

func (q *QueueSource) Subscribe(ctx context.Context, handler domain.MessageHandler) error {
	deliveries, err := q.channel.Consume(
		q.queue,    // queue
		q.consumer, // consumer
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	q.log.Info("Subscribed to bid queue", "queue", q.queue, "consumer", q.consumer)
	return consume(ctx, deliveries, handler, q.log)
}

// consume handles deliveries until ctx is done or the channel closes. Each delivery
// is acked once handled; invalid bids are dropped rather than requeued.
func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handler domain.MessageHandler, log logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			log.Info("Bid queue subscriber stopped")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}

			if err := handler(ctx, d.Body); err != nil {
				if errors.Is(err, domain.ErrInvalidBid) {
					log.Warn("Dropping invalid bid", "message_id", d.MessageId, "payload", string(d.Body), "error", err)
				} else {
					log.Error("Failed to handle bid", "message_id", d.MessageId, "error", err)
				}
			}

			if err := d.Ack(false); err != nil {
				log.Error("Failed to ack delivery", "message_id", d.MessageId, "error", err)
			}
		}
	}
}

func (q *QueueSource) Close() error {
	return q.channel.Close()
}
