package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type fakePublisher struct {
	mutex sync.Mutex
	bids  []domain.Bid
	err   error
}

func (f *fakePublisher) PublishBid(ctx context.Context, bid domain.Bid) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bids = append(f.bids, bid)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newBidServer(publisher domain.BidPublisher) *echo.Echo {
	e := echo.New()
	handler := NewBidHandler(publisher, logger.NewNop())
	handler.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	handler.Register(e)
	return e
}

func postBid(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bid", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBidHandler_SubmitBid(t *testing.T) {
	publisher := &fakePublisher{}
	e := newBidServer(publisher)

	rec := postBid(e, `{"auctionId":"a1","userId":"u1","amount":42.5}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp SubmitBidResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	check.Equal(t, "sent", resp.Status)

	want := domain.Bid{AuctionID: "a1", UserID: "u1", Amount: 42.5, Timestamp: 1_700_000_000_000}
	check.Equal(t, want, resp.Bid)
	assert.Equal(t, 1, len(publisher.bids))
	check.Equal(t, want, publisher.bids[0])
}

func TestBidHandler_KeepsClientTimestamp(t *testing.T) {
	publisher := &fakePublisher{}
	e := newBidServer(publisher)

	rec := postBid(e, `{"auctionId":"a1","userId":"u1","amount":1,"timestamp":123}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, int64(123), publisher.bids[0].Timestamp)
}

func TestBidHandler_RejectsInvalidBids(t *testing.T) {
	cases := map[string]string{
		"missing auction": `{"userId":"u1","amount":1}`,
		"missing user":    `{"auctionId":"a1","amount":1}`,
		"missing amount":  `{"auctionId":"a1","userId":"u1"}`,
		"string amount":   `{"auctionId":"a1","userId":"u1","amount":"10"}`,
		"negative amount": `{"auctionId":"a1","userId":"u1","amount":-5}`,
		"malformed json":  `{"auctionId":`,
		"negative time":   `{"auctionId":"a1","userId":"u1","amount":1,"timestamp":-1}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			publisher := &fakePublisher{}
			rec := postBid(newBidServer(publisher), body)

			check.Equal(t, http.StatusBadRequest, rec.Code)
			check.Equal(t, `{"error":"bid must include auctionId, userId, amount (number)"}`+"\n", rec.Body.String())
			check.Equal(t, 0, len(publisher.bids))
		})
	}
}

func TestBidHandler_PublishFailure(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("stream unavailable")}

	rec := postBid(newBidServer(publisher), `{"auctionId":"a1","userId":"u1","amount":1}`)

	check.Equal(t, http.StatusInternalServerError, rec.Code)
	check.Equal(t, `{"error":"failed to send bid"}`+"\n", rec.Body.String())
}

func TestBidHandler_RootAndHealth(t *testing.T) {
	e := newBidServer(&fakePublisher{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, "Auction Producer running", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	check.Equal(t, http.StatusOK, rec.Code)
	check.True(t, strings.Contains(rec.Body.String(), `"service":"bid-producer"`))
}
