package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"bid-aggregator/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// StreamPublisher appends bids to a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (r *StreamPublisher) PublishBid(ctx context.Context, bid domain.Bid) error {
	payload, err := json.Marshal(bid)
	if err != nil {
		return err
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			PayloadField: string(payload),
			"message_id": uuid.NewString(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

func (r *StreamPublisher) Close() error {
	return nil
}
