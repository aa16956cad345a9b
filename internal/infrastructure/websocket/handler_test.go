package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/internal/services"
	"bid-aggregator/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type envelope struct {
	Type        domain.MessageType       `json:"type"`
	AuctionID   string                   `json:"auctionId"`
	HighestBids domain.Snapshot          `json:"highestBids"`
	Highest     *domain.HighestBidRecord `json:"highest"`
	Bid         *domain.Bid              `json:"bid"`
}

func newTestAggregator() *services.Aggregator {
	log := logger.NewNop()
	registry := services.NewSubscriberRegistry(log)
	return services.NewAggregator(services.NewLedger(), registry, services.NewBroadcaster(registry, log), log)
}

func newTestServer(t *testing.T, agg *services.Aggregator) string {
	t.Helper()
	handler := NewWebSocketHandler(agg, SubscriberOptions{
		BufferSize:   8,
		WriteTimeout: time.Second,
		PingInterval: time.Second,
	}, logger.NewNop())
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)

	var msg envelope
	assert.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForSubscribers(t *testing.T, agg *services.Aggregator, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if agg.Stats().Subscribers == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", n, agg.Stats().Subscribers)
}

func TestWebSocketHandler_SnapshotThenEvents(t *testing.T) {
	agg := newTestAggregator()
	agg.Apply(domain.Bid{AuctionID: "A", UserID: "u1", Amount: 50, Timestamp: 1})
	agg.Apply(domain.Bid{AuctionID: "B", UserID: "u2", Amount: 30, Timestamp: 2})

	conn := dial(t, newTestServer(t, agg))

	snapshot := readEnvelope(t, conn)
	check.Equal(t, domain.MessageSnapshot, snapshot.Type)
	check.Equal(t, domain.Snapshot{
		"A": {Amount: 50, UserID: "u1", Timestamp: 1},
		"B": {Amount: 30, UserID: "u2", Timestamp: 2},
	}, snapshot.HighestBids)

	agg.Apply(domain.Bid{AuctionID: "A", UserID: "u3", Amount: 60, Timestamp: 3})
	agg.Apply(domain.Bid{AuctionID: "A", UserID: "u4", Amount: 55, Timestamp: 4})

	highest := readEnvelope(t, conn)
	check.Equal(t, domain.MessageHighestBid, highest.Type)
	check.Equal(t, "A", highest.AuctionID)
	assert.NotNil(t, highest.Highest)
	check.Equal(t, domain.HighestBidRecord{Amount: 60, UserID: "u3", Timestamp: 3}, *highest.Highest)

	received := readEnvelope(t, conn)
	check.Equal(t, domain.MessageBidReceived, received.Type)
	assert.NotNil(t, received.Bid)
	check.Equal(t, "u4", received.Bid.UserID)
}

func TestWebSocketHandler_EmptySnapshot(t *testing.T) {
	agg := newTestAggregator()
	conn := dial(t, newTestServer(t, agg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	check.Equal(t, `{"type":"snapshot","highestBids":{}}`, string(data))
}

func TestWebSocketHandler_DisconnectLeaves(t *testing.T) {
	agg := newTestAggregator()
	url := newTestServer(t, agg)

	staying := dial(t, url)
	leaving := dial(t, url)
	readEnvelope(t, staying)
	readEnvelope(t, leaving)
	waitForSubscribers(t, agg, 2)

	leaving.Close()
	waitForSubscribers(t, agg, 1)

	agg.Apply(domain.Bid{AuctionID: "A", UserID: "u1", Amount: 1, Timestamp: 1})
	check.Equal(t, domain.MessageHighestBid, readEnvelope(t, staying).Type)
}

func TestWebSocketHandler_ClientMessagesAreIgnored(t *testing.T) {
	agg := newTestAggregator()
	conn := dial(t, newTestServer(t, agg))
	readEnvelope(t, conn)

	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bid","amount":1}`)))
	agg.Apply(domain.Bid{AuctionID: "A", UserID: "u1", Amount: 1, Timestamp: 1})

	check.Equal(t, domain.MessageHighestBid, readEnvelope(t, conn).Type)
	check.Equal(t, 1, len(agg.Snapshot()))
}

func TestSubscriber_SendReportsBackedUpAndClosed(t *testing.T) {
	subs := make(chan *Subscriber, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// no writePump, so nothing drains the buffer
		subs <- NewSubscriber(conn, SubscriberOptions{BufferSize: 1}, logger.NewNop())
	}))
	t.Cleanup(server.Close)

	dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	sub := <-subs

	check.NoError(t, sub.Send([]byte("one")))
	check.True(t, errors.Is(sub.Send([]byte("two")), domain.ErrSubscriberBackedUp))

	assert.NoError(t, sub.Close())
	check.NoError(t, sub.Close())
	check.True(t, errors.Is(sub.Send([]byte("three")), domain.ErrSubscriberClosed))

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

// An observer that stops reading fills its socket and buffer, and is evicted
// without holding up bids applied in the meantime.
func TestWebSocketHandler_StalledObserverDoesNotBlockApply(t *testing.T) {
	agg := newTestAggregator()
	handler := NewWebSocketHandler(agg, SubscriberOptions{
		BufferSize:   1,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}, logger.NewNop())
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	waitForSubscribers(t, agg, 1)

	userID := strings.Repeat("u", 1<<20)
	var worst time.Duration
	for i := 1; i <= 200 && agg.Stats().Subscribers > 0; i++ {
		start := time.Now()
		agg.Apply(domain.Bid{AuctionID: "A", UserID: userID, Amount: float64(i), Timestamp: int64(i)})
		if elapsed := time.Since(start); elapsed > worst {
			worst = elapsed
		}
	}

	assert.Equal(t, 0, agg.Stats().Subscribers)
	check.True(t, worst < 500*time.Millisecond)
}
