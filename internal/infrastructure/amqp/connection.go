package amqp

import (
	"context"
	"fmt"
	"time"

	"bid-aggregator/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial connects to the broker, retrying because RabbitMQ takes a while to accept
// connections after it starts.
func Dial(ctx context.Context, url string, attempts int, delay time.Duration, log logger.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error

	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Warn("Failed to connect to RabbitMQ, retrying", "attempt", i, "attempts", attempts, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
}

func declareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return nil
}
