package adapters

import (
	"context"
	"time"

	"vigilstream/internal/vigil/domain"
	"vigilstream/internal/vigil/pubsub"
	"vigilstream/pkg/clock"
	"vigilstream/pkg/errors"
	"vigilstream/pkg/logger"
)

// EventStreamer is a subscriber channel: the transport-side sink one watcher
// receives events on.
type EventStreamer interface {
	// SendEvent sends one event to the client.
	SendEvent(ev domain.Event) error
	// SendKeepalive keeps idle connections open through proxies.
	SendKeepalive() error
	// Context is cancelled when the client goes away.
	Context() context.Context
}

// Unsubscriber releases a subscription.
type Unsubscriber interface {
	Unsubscribe(sub *pubsub.Subscription)
}

type PumpOptions struct {
	// KeepAlive is the idle keepalive period; 0 disables keepalives.
	KeepAlive time.Duration
	Clock     clock.Clock
	// StopOnTerminal ends the stream after the first terminal event. Used
	// for per-object topics.
	StopOnTerminal bool
}

// Pump forwards events from sub to stream until the client leaves, the
// subscription ends or, with StopOnTerminal, the object reaches a terminal
// state. The subscription is always released.
func Pump(ctx context.Context, bus Unsubscriber, sub *pubsub.Subscription, stream EventStreamer, opts PumpOptions) error {
	defer bus.Unsubscribe(sub)

	log := logger.WithFields("component", "event-pump", "topic", sub.Topic(), "subscriptionId", sub.ID())

	var keepalive <-chan time.Time
	if opts.KeepAlive > 0 {
		clk := opts.Clock
		if clk == nil {
			clk = clock.Real()
		}
		ticker := clk.NewTicker(opts.KeepAlive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-stream.Context().Done():
			log.Debug("watcher disconnected")
			return errors.ErrStreamCancelled

		case <-sub.Done():
			err := sub.Err()
			log.Debug("subscription ended", "reason", err)
			return err

		case ev := <-sub.Events():
			if err := stream.SendEvent(ev); err != nil {
				log.Warn("failed to send event", "objectId", ev.ObjectID, "error", err)
				return err
			}
			if opts.StopOnTerminal && (ev.IsTerminal() || ev.Deleted) {
				log.Debug("object reached terminal state, closing stream", "objectId", ev.ObjectID, "state", ev.LifecycleState)
				return nil
			}

		case <-keepalive:
			if err := stream.SendKeepalive(); err != nil {
				log.Warn("failed to send keepalive", "error", err)
				return err
			}
		}
	}
}
