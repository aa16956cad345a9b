package services

import (
	"sync"

	"bid-aggregator/internal/domain"
)

// Ledger is the authoritative in-memory map of auction ID to highest bid.
type Ledger struct {
	records map[string]domain.HighestBidRecord
	mutex   sync.RWMutex
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]domain.HighestBidRecord),
	}
}

// Apply records bid if it strictly beats the current highest for its auction.
// Lookup, compare and write happen under one lock. Ties keep the earlier record.
func (l *Ledger) Apply(bid domain.Bid) domain.AggregationOutcome {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	current, exists := l.records[bid.AuctionID]
	if !exists || bid.Amount > current.Amount {
		record := bid.Record()
		l.records[bid.AuctionID] = record
		return domain.HighestUpdated{AuctionID: bid.AuctionID, Record: record}
	}

	return domain.BidObserved{AuctionID: bid.AuctionID, Bid: bid}
}

func (l *Ledger) Get(auctionID string) (domain.HighestBidRecord, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	record, ok := l.records[auctionID]
	return record, ok
}

// Snapshot returns a copy; callers may keep or mutate it freely.
func (l *Ledger) Snapshot() domain.Snapshot {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	snapshot := make(domain.Snapshot, len(l.records))
	for auctionID, record := range l.records {
		snapshot[auctionID] = record
	}
	return snapshot
}

func (l *Ledger) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return len(l.records)
}
