package pubsub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigilstream/internal/vigil/domain"
)

func progress(id string, p int) domain.Event {
	return domain.Event{ObjectID: id, ProgressPercent: p, LifecycleState: domain.StateProcessing, Message: "Processing..."}
}

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestBus_DeliversExactlyOnceToTopicSubscribers(t *testing.T) {
	bus := New(Options{})
	topic := domain.ObjectTopic("x")

	a := bus.Subscribe(topic)
	b := bus.Subscribe(topic)
	other := bus.Subscribe(domain.ObjectTopic("y"))

	n := bus.Publish(topic, progress("x", 5))
	assert.Equal(t, 2, n)

	assert.Equal(t, 5, receive(t, a).ProgressPercent)
	assert.Equal(t, 5, receive(t, b).ProgressPercent)
	assertEmpty(t, a)
	assertEmpty(t, b)
	assertEmpty(t, other)
}

func TestBus_SameTopicSubscriptionsAreIndependent(t *testing.T) {
	bus := New(Options{})
	first := bus.Subscribe("t")
	second := bus.Subscribe("t")
	require.NotEqual(t, first.ID(), second.ID())

	bus.Unsubscribe(first)
	bus.Publish("t", progress("x", 10))

	assertEmpty(t, first)
	assert.Equal(t, 10, receive(t, second).ProgressPercent)
}

func TestBus_UnsubscribeBeforePublishReceivesNothing(t *testing.T) {
	bus := New(Options{})
	sub := bus.Subscribe("t")
	bus.Unsubscribe(sub)

	assert.Equal(t, 0, bus.Publish("t", progress("x", 5)))
	assertEmpty(t, sub)
	assert.ErrorIs(t, sub.Err(), ErrSubscriberClosed)

	// idempotent
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
	assert.Equal(t, 0, bus.SubscriberCount("t"))
}

func TestBus_PublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := New(Options{})
	assert.Equal(t, 0, bus.Publish("nobody", progress("x", 5)))
	assert.Equal(t, uint64(0), bus.Stats().Published)
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := New(Options{})
	topic := domain.ObjectTopic("x")
	early := bus.Subscribe(topic)

	bus.Publish(topic, domain.Event{ObjectID: "x", ProgressPercent: 100, LifecycleState: domain.StateReady})
	late := bus.Subscribe(topic)

	assert.Equal(t, domain.StateReady, receive(t, early).LifecycleState)
	assertEmpty(t, late)
	assert.NoError(t, late.Err())
}

func TestBus_EvictsSlowSubscriberWithoutStallingOthers(t *testing.T) {
	bus := New(Options{SendTimeout: 20 * time.Millisecond, Buffer: 1})
	slow := bus.Subscribe("t")
	fast := bus.Subscribe("t")

	// fill the slow subscriber's buffer
	bus.Publish("t", progress("x", 5))
	receive(t, fast)

	start := time.Now()
	n := bus.Publish("t", progress("x", 10))
	elapsed := time.Since(start)

	assert.Equal(t, 1, n)
	assert.Equal(t, 10, receive(t, fast).ProgressPercent)
	assert.Less(t, elapsed, time.Second)

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber was not evicted")
	}
	assert.ErrorIs(t, slow.Err(), ErrSubscriberEvicted)
	assert.Equal(t, 1, bus.SubscriberCount("t"))
	assert.Equal(t, uint64(1), bus.Stats().Evicted)
}

func TestBus_ManySlowSubscribersShareOneDeadline(t *testing.T) {
	timeout := 30 * time.Millisecond
	bus := New(Options{SendTimeout: timeout, Buffer: 1})

	subs := make([]*Subscription, 10)
	for i := range subs {
		subs[i] = bus.Subscribe("t")
	}
	bus.Publish("t", progress("x", 5))

	start := time.Now()
	bus.Publish("t", progress("x", 10))
	elapsed := time.Since(start)

	// one shared deadline, not one per subscriber
	assert.Less(t, elapsed, 5*timeout)
	for _, sub := range subs {
		assert.ErrorIs(t, sub.Err(), ErrSubscriberEvicted)
	}
}

func TestBus_SubscriberDrainedDuringWaitIsKept(t *testing.T) {
	bus := New(Options{SendTimeout: 100 * time.Millisecond, Buffer: 1})
	stuck := bus.Subscribe("t")
	drained := bus.Subscribe("t")
	bus.Publish("t", progress("x", 5))

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-drained.Events()
	}()

	n := bus.Publish("t", progress("x", 10))
	assert.Equal(t, 1, n)

	assert.Equal(t, 10, receive(t, drained).ProgressPercent)
	assert.NoError(t, drained.Err())
	assert.ErrorIs(t, stuck.Err(), ErrSubscriberEvicted)
	assert.Equal(t, 1, bus.SubscriberCount("t"))
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New(Options{Buffer: 32})
	sub := bus.Subscribe("t")

	for p := 5; p <= 100; p += 5 {
		bus.Publish("t", progress("x", p))
	}
	last := 0
	for p := 5; p <= 100; p += 5 {
		ev := receive(t, sub)
		assert.Greater(t, ev.ProgressPercent, last)
		last = ev.ProgressPercent
	}
}

func TestBus_Close(t *testing.T) {
	bus := New(Options{})
	sub := bus.Subscribe("t")

	bus.Close()
	bus.Close()

	assert.ErrorIs(t, sub.Err(), ErrBusClosed)
	assert.Equal(t, 0, bus.Publish("t", progress("x", 5)))

	after := bus.Subscribe("t")
	assert.ErrorIs(t, after.Err(), ErrBusClosed)
}

func TestBus_ConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	bus := New(Options{SendTimeout: 5 * time.Millisecond, Buffer: 4})
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topic := fmt.Sprintf("t-%d", i%3)
			for j := 0; j < 50; j++ {
				sub := bus.Subscribe(topic)
				bus.Publish(topic, progress("x", j))
				bus.Publish(domain.GlobalTopic, progress("x", j))
				bus.Unsubscribe(sub)
			}
		}(i)
	}

	drain := bus.Subscribe(domain.GlobalTopic)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-drain.Events():
			case <-stop:
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	bus.Unsubscribe(drain)

	assert.Equal(t, 0, bus.Stats().Subscribers)
}
