package domain

import "context"

// MessageHandler handles one raw payload from the bid stream. A returned error is
// logged by the source; the message is acknowledged either way.
type MessageHandler func(ctx context.Context, payload []byte) error

// BidSource is the Bid Event Source. Subscribe blocks until ctx is cancelled or the
// underlying connection fails irrecoverably.
type BidSource interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// BidPublisher places a serialized bid onto the stream.
type BidPublisher interface {
	PublishBid(ctx context.Context, bid Bid) error
	Close() error
}

// Subscriber is one connected observer. Send must not block indefinitely.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close() error
}

// InstanceLock guards the single-aggregator assumption.
type InstanceLock interface {
	Acquire(ctx context.Context, owner string) error
	Release(ctx context.Context, owner string) error
}
