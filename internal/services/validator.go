package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"bid-aggregator/internal/domain"
)

// maxTimestamp is 2^63, the first float64 that no longer fits in an int64.
const maxTimestamp = float64(1 << 63)

// DecodeBid parses a stream payload into a Bid. It has no side effects; every
// failure wraps domain.ErrInvalidBid. A missing or zero timestamp is set to now().
// Field names are matched exactly; "AUCTIONID" is not auctionId.
func DecodeBid(payload []byte, now func() time.Time) (domain.Bid, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return domain.Bid{}, invalid("malformed payload: %v", err)
	}
	raw := struct {
		AuctionID, UserID, Amount, Timestamp json.RawMessage
	}{
		AuctionID: fields["auctionId"],
		UserID:    fields["userId"],
		Amount:    fields["amount"],
		Timestamp: fields["timestamp"],
	}

	var bid domain.Bid

	if !present(raw.AuctionID) {
		return domain.Bid{}, invalid("auctionId missing")
	}
	if err := json.Unmarshal(raw.AuctionID, &bid.AuctionID); err != nil {
		return domain.Bid{}, invalid("auctionId is not a string")
	}
	if bid.AuctionID == "" {
		return domain.Bid{}, invalid("auctionId empty")
	}

	if present(raw.UserID) {
		if err := json.Unmarshal(raw.UserID, &bid.UserID); err != nil {
			return domain.Bid{}, invalid("userId is not a string")
		}
	}

	if !present(raw.Amount) {
		return domain.Bid{}, invalid("amount missing")
	}
	amount, err := decodeNumber(raw.Amount)
	if err != nil {
		return domain.Bid{}, invalid("amount: %v", err)
	}
	if amount < 0 {
		return domain.Bid{}, invalid("amount negative")
	}
	bid.Amount = amount

	if present(raw.Timestamp) {
		ts, err := decodeNumber(raw.Timestamp)
		if err != nil {
			return domain.Bid{}, invalid("timestamp: %v", err)
		}
		if ts < 0 || ts >= maxTimestamp || ts != math.Trunc(ts) {
			return domain.Bid{}, invalid("timestamp %v is not a non-negative integer", ts)
		}
		bid.Timestamp = int64(ts)
	}
	if bid.Timestamp == 0 {
		bid.Timestamp = now().UnixMilli()
	}

	return bid, nil
}

// SubmitBidRequest is the producer-facing submission body. Pointer fields tell
// "absent" apart from zero values.
type SubmitBidRequest struct {
	AuctionID string   `json:"auctionId"`
	UserID    string   `json:"userId"`
	Amount    *float64 `json:"amount"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// ValidateSubmission checks a producer request and returns the Bid to publish.
// The producer is stricter than the stream: userId is required.
func ValidateSubmission(req SubmitBidRequest, now func() time.Time) (domain.Bid, error) {
	if req.AuctionID == "" {
		return domain.Bid{}, invalid("auctionId missing")
	}
	if req.UserID == "" {
		return domain.Bid{}, invalid("userId missing")
	}
	if req.Amount == nil {
		return domain.Bid{}, invalid("amount missing")
	}
	if math.IsNaN(*req.Amount) || math.IsInf(*req.Amount, 0) || *req.Amount < 0 {
		return domain.Bid{}, invalid("amount must be a finite non-negative number")
	}

	ts := req.Timestamp
	if ts < 0 {
		return domain.Bid{}, invalid("timestamp negative")
	}
	if ts == 0 {
		ts = now().UnixMilli()
	}
	return domain.Bid{
		AuctionID: req.AuctionID,
		UserID:    req.UserID,
		Amount:    *req.Amount,
		Timestamp: ts,
	}, nil
}

func present(field json.RawMessage) bool {
	return len(field) > 0 && !bytes.Equal(field, []byte("null"))
}

// decodeNumber accepts only JSON number tokens; "10" is rejected.
func decodeNumber(field json.RawMessage) (float64, error) {
	if field[0] == '"' {
		return 0, fmt.Errorf("string %s is not a number", field)
	}
	var n float64
	if err := json.Unmarshal(field, &n); err != nil {
		return 0, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not finite")
	}
	return n, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidBid, fmt.Sprintf(format, args...))
}
