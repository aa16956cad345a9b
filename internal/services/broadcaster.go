package services

import (
	"encoding/json"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"
)

// Broadcaster fans aggregation outcomes out to every registered subscriber.
type Broadcaster struct {
	registry *SubscriberRegistry
	log      logger.Logger
}

func NewBroadcaster(registry *SubscriberRegistry, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		log:      log,
	}
}

// Publish delivers outcome to all current members and returns how many accepted it.
// A subscriber whose Send fails is dropped from the registry and closed
// asynchronously; the error never reaches the caller.
func (b *Broadcaster) Publish(outcome domain.AggregationOutcome) int {
	payload, err := json.Marshal(outcome.Message())
	if err != nil {
		b.log.Error("Failed to encode outcome", "auction_id", outcome.Auction(), "error", err)
		return 0
	}

	delivered := 0
	for _, sub := range b.registry.Members() {
		if err := sub.Send(payload); err != nil {
			b.evict(sub, err)
			continue
		}
		delivered++
	}

	b.log.Debug("Broadcast outcome", "auction_id", outcome.Auction(), "delivered", delivered)
	return delivered
}

// evict unregisters sub at once and closes it in the background. Closing a
// websocket can wait on a stalled write, and Publish runs inside the apply path.
func (b *Broadcaster) evict(sub domain.Subscriber, cause error) {
	if !b.registry.Remove(sub) {
		return
	}
	b.log.Warn("Dropping subscriber after failed send", "subscriber_id", sub.ID(), "error", cause)
	go func() {
		if err := sub.Close(); err != nil {
			b.log.Debug("Failed to close subscriber", "subscriber_id", sub.ID(), "error", err)
		}
	}()
}
