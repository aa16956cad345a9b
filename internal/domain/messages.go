package domain

type MessageType string

const (
	MessageSnapshot    MessageType = "snapshot"
	MessageHighestBid  MessageType = "highestBid"
	MessageBidReceived MessageType = "bidReceived"
)

// Outbound observer messages.

type SnapshotMessage struct {
	Type        MessageType `json:"type"`
	HighestBids Snapshot    `json:"highestBids"`
}

type HighestBidMessage struct {
	Type      MessageType      `json:"type"`
	AuctionID string           `json:"auctionId"`
	Highest   HighestBidRecord `json:"highest"`
}

type BidReceivedMessage struct {
	Type      MessageType `json:"type"`
	AuctionID string      `json:"auctionId"`
	Bid       Bid         `json:"bid"`
}

func NewSnapshotMessage(s Snapshot) SnapshotMessage {
	if s == nil {
		s = Snapshot{}
	}
	return SnapshotMessage{Type: MessageSnapshot, HighestBids: s}
}
