package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"
)

// Aggregator is the aggregation engine: it applies bids to the ledger and hands
// every outcome to the broadcaster. sequence orders apply+publish against Join, so a
// joining subscriber sees each update either in its snapshot or as an event, never
// both and never neither.
type Aggregator struct {
	ledger      *Ledger
	registry    *SubscriberRegistry
	broadcaster *Broadcaster
	sequence    sync.Mutex
	now         func() time.Time
	log         logger.Logger

	received atomic.Int64
	invalid  atomic.Int64
	highest  atomic.Int64
	observed atomic.Int64
}

type AggregatorStats struct {
	Received       int64 `json:"received"`
	Invalid        int64 `json:"invalid"`
	HighestUpdates int64 `json:"highestUpdates"`
	Observed       int64 `json:"observed"`
	Auctions       int   `json:"auctions"`
	Subscribers    int   `json:"subscribers"`
}

func NewAggregator(ledger *Ledger, registry *SubscriberRegistry, broadcaster *Broadcaster, log logger.Logger) *Aggregator {
	return &Aggregator{
		ledger:      ledger,
		registry:    registry,
		broadcaster: broadcaster,
		now:         time.Now,
		log:         log,
	}
}

// HandleMessage is the domain.MessageHandler for the bid stream. Invalid payloads
// are counted and returned as errors wrapping domain.ErrInvalidBid; they never touch
// the ledger or reach subscribers.
func (a *Aggregator) HandleMessage(ctx context.Context, payload []byte) error {
	a.received.Add(1)

	bid, err := DecodeBid(payload, a.now)
	if err != nil {
		a.invalid.Add(1)
		return err
	}

	a.Apply(bid)
	return nil
}

// Apply updates the ledger with bid and publishes the resulting outcome.
func (a *Aggregator) Apply(bid domain.Bid) domain.AggregationOutcome {
	a.sequence.Lock()
	defer a.sequence.Unlock()

	outcome := a.ledger.Apply(bid)
	a.broadcaster.Publish(outcome)

	switch outcome.(type) {
	case domain.HighestUpdated:
		a.highest.Add(1)
		a.log.Info("New highest bid", "auction_id", bid.AuctionID, "user_id", bid.UserID, "amount", bid.Amount)
	case domain.BidObserved:
		a.observed.Add(1)
		a.log.Info("Bid received (not highest)", "auction_id", bid.AuctionID, "user_id", bid.UserID, "amount", bid.Amount)
	}

	return outcome
}

// Join sends the current ledger snapshot to sub and registers it for future
// outcomes. If the snapshot cannot be delivered sub is not registered.
func (a *Aggregator) Join(sub domain.Subscriber) (domain.Snapshot, error) {
	a.sequence.Lock()
	defer a.sequence.Unlock()

	snapshot := a.ledger.Snapshot()
	payload, err := json.Marshal(domain.NewSnapshotMessage(snapshot))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := sub.Send(payload); err != nil {
		return nil, fmt.Errorf("send snapshot: %w", err)
	}

	a.registry.Add(sub)
	return snapshot, nil
}

// Leave unregisters sub. Safe to call more than once.
func (a *Aggregator) Leave(sub domain.Subscriber) {
	a.registry.Remove(sub)
}

func (a *Aggregator) Snapshot() domain.Snapshot {
	return a.ledger.Snapshot()
}

func (a *Aggregator) Highest(auctionID string) (domain.HighestBidRecord, bool) {
	return a.ledger.Get(auctionID)
}

func (a *Aggregator) Stats() AggregatorStats {
	return AggregatorStats{
		Received:       a.received.Load(),
		Invalid:        a.invalid.Load(),
		HighestUpdates: a.highest.Load(),
		Observed:       a.observed.Load(),
		Auctions:       a.ledger.Len(),
		Subscribers:    a.registry.Len(),
	}
}
