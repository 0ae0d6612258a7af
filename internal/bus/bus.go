package bus

import (
	"context"
	"log/slog"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
)

const commandBufferSize = 256

// --- Command types ---

type busCmd interface{ busCmd() }

type subscribeCmd struct {
	channel string
	replyCh chan *subscription
}

func (subscribeCmd) busCmd() {}

type unsubscribeCmd struct {
	sub *subscription
}

func (unsubscribeCmd) busCmd() {}

type publishCmd struct {
	channel string
	msg     domain.Message
}

func (publishCmd) busCmd() {}

type countCmd struct {
	channel string
	replyCh chan int
}

func (countCmd) busCmd() {}

type stopCmd struct{}

func (stopCmd) busCmd() {}

// --- Subscription ---

type subscription struct {
	bus     *Bus
	channel string
	ch      chan domain.Message
	closing chan struct{}
}

func (s *subscription) Messages() <-chan domain.Message { return s.ch }

// Close deregisters the subscription. Idempotent; the message channel is
// closed by the bus actor, never here, so publishes can't race a close.
func (s *subscription) Close() {
	select {
	case <-s.closing:
		return
	default:
	}

	select {
	case s.bus.cmdCh <- unsubscribeCmd{sub: s}:
	case <-s.bus.done:
	}
}

// --- Bus ---

// Bus is the in-memory broadcast bus. All registration state is owned by
// a single goroutine started in New.
type Bus struct {
	cmdCh      chan busCmd
	channels   map[string]map[*subscription]struct{}
	bufferSize int
	policy     domain.OverflowPolicy
	done       chan struct{}
}

// New creates a bus and starts its actor goroutine.
// bufferSize is the per-subscriber sink capacity; policy decides what
// happens when a sink is full at delivery time.
func New(bufferSize int, policy domain.OverflowPolicy) *Bus {
	b := &Bus{
		cmdCh:      make(chan busCmd, commandBufferSize),
		channels:   make(map[string]map[*subscription]struct{}),
		bufferSize: bufferSize,
		policy:     policy,
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a new sink on channel. The subscription observes
// only messages published after registration.
func (b *Bus) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	select {
	case <-b.done:
		return nil, domain.ErrBusClosed
	default:
	}

	replyCh := make(chan *subscription, 1)

	select {
	case b.cmdCh <- subscribeCmd{channel: channel, replyCh: replyCh}:
	case <-b.done:
		return nil, domain.ErrBusClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case sub := <-replyCh:
		return sub, nil
	case <-b.done:
		return nil, domain.ErrBusClosed
	}
}

// Publish enqueues msg for fan-out to every current subscriber of channel.
// The enqueue order is the delivery order. Publish never waits on a slow
// subscriber; at worst it waits for space in the bus command buffer.
func (b *Bus) Publish(ctx context.Context, channel string, msg domain.Message) error {
	select {
	case <-b.done:
		return domain.ErrBusClosed
	default:
	}

	select {
	case b.cmdCh <- publishCmd{channel: channel, msg: msg}:
		metrics.MessagesPublishedTotal.WithLabelValues(channel).Inc()
		return nil
	case <-b.done:
		return domain.ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscriberCount returns the number of registered subscriptions on channel.
func (b *Bus) SubscriberCount(channel string) int {
	replyCh := make(chan int, 1)

	select {
	case b.cmdCh <- countCmd{channel: channel, replyCh: replyCh}:
	case <-b.done:
		return 0
	}

	select {
	case n := <-replyCh:
		return n
	case <-b.done:
		return 0
	}
}

// Stop closes every subscription and terminates the actor. Blocks until
// the actor goroutine has exited.
func (b *Bus) Stop() {
	select {
	case b.cmdCh <- stopCmd{}:
	case <-b.done:
		return
	}
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)

	for cmd := range b.cmdCh {
		switch c := cmd.(type) {
		case subscribeCmd:
			c.replyCh <- b.handleSubscribe(c.channel)
		case unsubscribeCmd:
			b.removeSubscription(c.sub)
		case publishCmd:
			b.handlePublish(c.channel, c.msg)
		case countCmd:
			c.replyCh <- len(b.channels[c.channel])
		case stopCmd:
			b.handleStop()
			return
		}
	}
}

func (b *Bus) handleSubscribe(channel string) *subscription {
	subs, exists := b.channels[channel]
	if !exists {
		subs = make(map[*subscription]struct{})
		b.channels[channel] = subs
	}

	sub := &subscription{
		bus:     b,
		channel: channel,
		ch:      make(chan domain.Message, b.bufferSize),
		closing: make(chan struct{}),
	}
	subs[sub] = struct{}{}

	metrics.ActiveSubscriptions.Inc()
	slog.Debug("Subscription registered", "channel", channel, "subscribers", len(subs))
	return sub
}

func (b *Bus) removeSubscription(sub *subscription) {
	subs, exists := b.channels[sub.channel]
	if !exists {
		return
	}
	if _, registered := subs[sub]; !registered {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.channels, sub.channel)
	}

	close(sub.closing)
	close(sub.ch)
	metrics.ActiveSubscriptions.Dec()
	slog.Debug("Subscription removed", "channel", sub.channel, "subscribers", len(subs))
}

func (b *Bus) handlePublish(channel string, msg domain.Message) {
	subs := b.channels[channel]
	if len(subs) == 0 {
		return
	}

	var slow []*subscription
	for sub := range subs {
		select {
		case sub.ch <- msg:
			metrics.MessagesDeliveredTotal.Inc()
			continue
		default:
		}

		switch b.policy {
		case domain.OverflowDropOldest:
			// Evict the oldest queued message to make room for the new one.
			select {
			case <-sub.ch:
				metrics.MessagesDroppedTotal.WithLabelValues("overflow_evicted").Inc()
			default:
			}
			select {
			case sub.ch <- msg:
				metrics.MessagesDeliveredTotal.Inc()
			default:
				metrics.MessagesDroppedTotal.WithLabelValues("overflow_dropped").Inc()
			}
		default:
			slow = append(slow, sub)
		}
	}

	for _, sub := range slow {
		slog.Warn("Disconnecting slow subscriber", "channel", channel)
		metrics.SlowSubscribersEvicted.Inc()
		b.removeSubscription(sub)
	}
}

func (b *Bus) handleStop() {
	total := 0
	for _, subs := range b.channels {
		total += len(subs)
		for sub := range subs {
			close(sub.closing)
			close(sub.ch)
			metrics.ActiveSubscriptions.Dec()
		}
	}
	b.channels = make(map[string]map[*subscription]struct{})
	slog.Info("Bus stopped", "closed_subscriptions", total)
}
