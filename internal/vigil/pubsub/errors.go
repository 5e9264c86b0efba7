package pubsub

import "errors"

// Reasons reported by Subscription.Err once its Done channel is closed.
var (
	// ErrBusClosed indicates that the bus has been shut down.
	ErrBusClosed = errors.New("event bus is closed")

	// ErrSubscriberClosed indicates that the subscriber unsubscribed.
	ErrSubscriberClosed = errors.New("subscriber is closed")

	// ErrSubscriberEvicted indicates that the subscriber did not keep up
	// with delivery and was removed.
	ErrSubscriberEvicted = errors.New("subscriber evicted: delivery timed out")
)
