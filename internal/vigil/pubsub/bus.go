package pubsub

import (
	"sync"
	"sync/atomic"
	"time"

	"vigilstream/internal/vigil/domain"
	"vigilstream/pkg/logger"
)

const (
	DefaultSendTimeout = 50 * time.Millisecond
	DefaultBuffer      = 16
)

// Subscription is a registration on one topic. Events arrive on Events()
// until Done() is closed; Err() then reports why.
type Subscription struct {
	id    uint64
	topic string
	ch    chan domain.Event
	done  chan struct{}

	once sync.Once
	err  error
}

func (s *Subscription) ID() uint64    { return s.id }
func (s *Subscription) Topic() string { return s.topic }

// Events is never closed; select on Done as well.
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns nil while the subscription is live.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscription) close(reason error) bool {
	closed := false
	s.once.Do(func() {
		s.err = reason
		close(s.done)
		closed = true
	})
	return closed
}

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Evicted     uint64
	Subscribers int
}

type Options struct {
	// SendTimeout bounds how long one Publish waits for slow subscribers
	// in total.
	SendTimeout time.Duration
	// Buffer is the per-subscription event buffer.
	Buffer int
}

// Bus fans events out to per-topic subscribers. Delivery is best effort:
// no replay, no buffering for late subscribers, no acknowledgement.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*Subscription
	closed bool

	nextID      atomic.Uint64
	published   atomic.Uint64
	delivered   atomic.Uint64
	evicted     atomic.Uint64
	sendTimeout time.Duration
	buffer      int

	logger *logger.Logger
}

func New(opts Options) *Bus {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}

	return &Bus{
		topics:      make(map[string]map[uint64]*Subscription),
		sendTimeout: opts.SendTimeout,
		buffer:      opts.Buffer,
		logger:      logger.WithField("component", "event-bus"),
	}
}

// Subscribe registers interest in topic. Each call returns an independent
// subscription. After Close the returned subscription is already done.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		id:    b.nextID.Add(1),
		topic: topic,
		ch:    make(chan domain.Event, b.buffer),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close(ErrBusClosed)
		return sub
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.id] = sub
	count := len(subs)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "subscriptionId", sub.id, "topicSubscribers", count)
	return sub
}

// Unsubscribe removes the registration. Calling it again is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	if b.remove(sub) {
		sub.close(ErrSubscriberClosed)
		b.logger.Debug("subscriber removed", "topic", sub.topic, "subscriptionId", sub.id)
	}
}

func (b *Bus) remove(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return false
	}
	if _, ok := subs[sub.id]; !ok {
		return false
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	return true
}

func (b *Bus) evict(sub *Subscription) {
	if b.remove(sub) && sub.close(ErrSubscriberEvicted) {
		b.evicted.Add(1)
		b.logger.Warn("slow subscriber detected, removing", "topic", sub.topic, "subscriptionId", sub.id, "timeout", b.sendTimeout)
	}
}

// lastChance tries one non-blocking send after the deadline and evicts sub
// if its buffer is still full.
func (b *Bus) lastChance(sub *Subscription, ev domain.Event) bool {
	select {
	case sub.ch <- ev:
		return true
	case <-sub.done:
		return false
	default:
		b.evict(sub)
		return false
	}
}

// Publish delivers ev to every current subscriber of topic and returns the
// number of deliveries. Subscribers with room receive immediately; the rest
// share a single deadline, so one call blocks for at most SendTimeout.
// Subscribers still full at the deadline get one last non-blocking send
// and are evicted if it fails.
func (b *Bus) Publish(topic string, ev domain.Event) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	subs := make([]*Subscription, 0, len(b.topics[topic]))
	for _, sub := range b.topics[topic] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return 0
	}
	b.published.Add(1)

	delivered := 0
	var pending []*Subscription
	for _, sub := range subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			pending = append(pending, sub)
		}
	}

	if len(pending) > 0 {
		timer := time.NewTimer(b.sendTimeout)
		defer timer.Stop()

		expired := false
		for _, sub := range pending {
			if !expired {
				select {
				case sub.ch <- ev:
					delivered++
					continue
				case <-sub.done:
					continue
				case <-timer.C:
					expired = true
				}
			}
			if b.lastChance(sub, ev) {
				delivered++
			}
		}
	}

	b.delivered.Add(uint64(delivered))
	return delivered
}

// SubscriberCount returns the live subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	total := 0
	for _, subs := range b.topics {
		total += len(subs)
	}
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Evicted:     b.evicted.Load(),
		Subscribers: total,
	}
}

// Close ends every subscription with ErrBusClosed. Later publishes are
// dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]map[uint64]*Subscription)
	b.mu.Unlock()

	count := 0
	for _, subs := range topics {
		for _, sub := range subs {
			sub.close(ErrBusClosed)
			count++
		}
	}

	if count > 0 {
		b.logger.Info("event bus closed", "closedSubscribers", count)
	}
}
