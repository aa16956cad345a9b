package domain

import "errors"

var (
	ErrInvalidBid = errors.New("invalid bid")

	ErrSubscriberClosed   = errors.New("subscriber closed")
	ErrSubscriberBackedUp = errors.New("subscriber send buffer full")

	ErrLockHeld = errors.New("instance lock held by another process")
)
