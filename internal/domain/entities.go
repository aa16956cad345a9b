package domain

import "time"

// Bid is one validated bid event. Timestamp is Unix milliseconds.
type Bid struct {
	AuctionID string  `json:"auctionId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

// HighestBidRecord is the current winning bid of one auction.
type HighestBidRecord struct {
	Amount    float64 `json:"amount"`
	UserID    string  `json:"userId"`
	Timestamp int64   `json:"timestamp"`
}

func (b Bid) Record() HighestBidRecord {
	return HighestBidRecord{
		Amount:    b.Amount,
		UserID:    b.UserID,
		Timestamp: b.Timestamp,
	}
}

// Time converts the millisecond timestamp into a time.Time.
func (b Bid) Time() time.Time {
	return time.UnixMilli(b.Timestamp)
}

// Snapshot is a point-in-time copy of the ledger keyed by auction ID.
type Snapshot map[string]HighestBidRecord

// AggregationOutcome is either HighestUpdated or BidObserved.
type AggregationOutcome interface {
	Auction() string
	Message() interface{}
	isOutcome()
}

// HighestUpdated means the bid became the new highest for its auction.
type HighestUpdated struct {
	AuctionID string
	Record    HighestBidRecord
}

// BidObserved means the bid did not beat (or only tied) the current highest.
type BidObserved struct {
	AuctionID string
	Bid       Bid
}

func (o HighestUpdated) Auction() string { return o.AuctionID }
func (o BidObserved) Auction() string    { return o.AuctionID }

func (o HighestUpdated) Message() interface{} {
	return HighestBidMessage{Type: MessageHighestBid, AuctionID: o.AuctionID, Highest: o.Record}
}

func (o BidObserved) Message() interface{} {
	return BidReceivedMessage{Type: MessageBidReceived, AuctionID: o.AuctionID, Bid: o.Bid}
}

func (HighestUpdated) isOutcome() {}
func (BidObserved) isOutcome()    {}
