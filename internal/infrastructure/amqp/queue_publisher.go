package amqp

import (
	"context"
	"encoding/json"
	"fmt"

	"bid-aggregator/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type QueuePublisher struct {
	channel *amqp.Channel
	queue   string
}

func NewQueuePublisher(conn *amqp.Connection, queue string) (*QueuePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	return &QueuePublisher{channel: ch, queue: queue}, nil
}

func (p *QueuePublisher) PublishBid(ctx context.Context, bid domain.Bid) error {
	body, err := json.Marshal(bid)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			MessageId:    uuid.NewString(),
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	if err != nil {
		return fmt.Errorf("failed to publish bid: %w", err)
	}
	return nil
}

func (p *QueuePublisher) Close() error {
	return p.channel.Close()
}
