package services

import (
	"sync"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"
)

// SubscriberRegistry is the set of connected observers, keyed by subscriber ID.
type SubscriberRegistry struct {
	subscribers map[string]domain.Subscriber
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewSubscriberRegistry(log logger.Logger) *SubscriberRegistry {
	return &SubscriberRegistry{
		subscribers: make(map[string]domain.Subscriber),
		log:         log,
	}
}

func (r *SubscriberRegistry) Add(sub domain.Subscriber) {
	r.mutex.Lock()
	r.subscribers[sub.ID()] = sub
	total := len(r.subscribers)
	r.mutex.Unlock()

	r.log.Info("Subscriber registered", "subscriber_id", sub.ID(), "subscribers", total)
}

// Remove is idempotent and reports whether sub was still registered.
func (r *SubscriberRegistry) Remove(sub domain.Subscriber) bool {
	r.mutex.Lock()
	current, exists := r.subscribers[sub.ID()]
	if exists && current == sub {
		delete(r.subscribers, sub.ID())
	}
	total := len(r.subscribers)
	r.mutex.Unlock()

	removed := exists && current == sub
	if removed {
		r.log.Info("Subscriber unregistered", "subscriber_id", sub.ID(), "subscribers", total)
	}
	return removed
}

// Members returns a copy so callers can iterate without holding the lock.
func (r *SubscriberRegistry) Members() []domain.Subscriber {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	members := make([]domain.Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		members = append(members, sub)
	}
	return members
}

func (r *SubscriberRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.subscribers)
}
