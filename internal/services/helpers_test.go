package services

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"
)

type fakeSubscriber struct {
	id         string
	mutex      sync.Mutex
	payloads   [][]byte
	sendErr    error
	closed     bool
	closeDelay time.Duration
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSubscriber) Close() error {
	time.Sleep(f.closeDelay)
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) failWith(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sendErr = err
}

func (f *fakeSubscriber) isClosed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.closed
}

// received decodes every payload into a generic envelope.
func (f *fakeSubscriber) received(t *testing.T) []observerMessage {
	t.Helper()
	f.mutex.Lock()
	defer f.mutex.Unlock()

	messages := make([]observerMessage, 0, len(f.payloads))
	for _, p := range f.payloads {
		var msg observerMessage
		if err := json.Unmarshal(p, &msg); err != nil {
			t.Fatalf("decode payload %s: %v", p, err)
		}
		messages = append(messages, msg)
	}
	return messages
}

// observerMessage is the union of all outbound message shapes.
type observerMessage struct {
	Type        domain.MessageType       `json:"type"`
	AuctionID   string                   `json:"auctionId"`
	HighestBids domain.Snapshot          `json:"highestBids"`
	Highest     *domain.HighestBidRecord `json:"highest"`
	Bid         *domain.Bid              `json:"bid"`
}

func newTestAggregator() (*Aggregator, *SubscriberRegistry) {
	log := logger.NewNop()
	registry := NewSubscriberRegistry(log)
	agg := NewAggregator(NewLedger(), registry, NewBroadcaster(registry, log), log)
	agg.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return agg, registry
}

func bid(auctionID, userID string, amount float64, ts int64) domain.Bid {
	return domain.Bid{AuctionID: auctionID, UserID: userID, Amount: amount, Timestamp: ts}
}
