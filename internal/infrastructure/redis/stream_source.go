package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// PayloadField is the stream entry field carrying the JSON bid.
const PayloadField = "value"

const retryDelay = time.Second

type StreamSourceConfig struct {
	Stream    string
	Group     string
	Consumer  string
	Block     time.Duration
	BatchSize int64
}

// StreamSource consumes bids from a Redis stream through a consumer group.
type StreamSource struct {
	client *redis.Client
	cfg    StreamSourceConfig
	log    logger.Logger
}

func NewStreamSource(client *redis.Client, cfg StreamSourceConfig, log logger.Logger) *StreamSource {
	return &StreamSource{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Setup creates the consumer group, and the stream if needed. New groups start at
// the end of the stream. An existing group is not an error.
func (r *StreamSource) Setup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.cfg.Stream, r.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", r.cfg.Group, r.cfg.Stream, err)
	}
	return nil
}

// Subscribe redelivers this consumer's pending entries, then blocks reading new
// ones until ctx is cancelled. Every entry is acknowledged after handler returns,
// whatever the result.
func (r *StreamSource) Subscribe(ctx context.Context, handler domain.MessageHandler) error {
	if err := r.Setup(ctx); err != nil {
		return err
	}
	if err := r.drainPending(ctx, handler); err != nil {
		return err
	}

	r.log.Info("Subscribed to bid stream", "stream", r.cfg.Stream, "group", r.cfg.Group, "consumer", r.cfg.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			r.log.Info("Bid stream subscriber stopped")
			return err
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			Streams:  []string{r.cfg.Stream, ">"},
			Count:    r.cfg.BatchSize,
			Block:    r.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			r.log.Error("Failed to read bid stream", "stream", r.cfg.Stream, "error", err)
			r.wait(ctx, retryDelay)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				r.handle(ctx, msg, handler)
			}
		}
	}
}

func (r *StreamSource) drainPending(ctx context.Context, handler domain.MessageHandler) error {
	lastID := "0"
	for {
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			Streams:  []string{r.cfg.Stream, lastID},
			Count:    r.cfg.BatchSize,
			Block:    -1,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return fmt.Errorf("read pending entries: %w", err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			return nil
		}

		for _, msg := range streams[0].Messages {
			r.log.Info("Redelivering pending bid", "id", msg.ID)
			r.handle(ctx, msg, handler)
			lastID = msg.ID
		}
	}
}

func (r *StreamSource) handle(ctx context.Context, msg redis.XMessage, handler domain.MessageHandler) {
	payload, ok := msg.Values[PayloadField].(string)
	if !ok {
		r.log.Warn("Dropping stream entry without payload", "id", msg.ID)
	} else if err := handler(ctx, []byte(payload)); err != nil {
		if errors.Is(err, domain.ErrInvalidBid) {
			r.log.Warn("Dropping invalid bid", "id", msg.ID, "payload", payload, "error", err)
		} else {
			r.log.Error("Failed to handle bid", "id", msg.ID, "error", err)
		}
	}

	if err := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err(); err != nil {
		r.log.Error("Failed to ack stream entry", "id", msg.ID, "error", err)
	}
}

func (r *StreamSource) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (r *StreamSource) Close() error {
	return nil
}
