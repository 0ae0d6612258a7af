package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
)

const (
	breakerFailureThreshold = 5
	breakerOpenDuration     = 30 * time.Second
)

// Bus is a domain.Bus backed by Redis Pub/Sub. Per-channel ordering
// follows Redis publish order; each subscription gets its own bounded
// sink with the configured overflow policy.
type Bus struct {
	rdb        *goredis.Client
	breaker    *gobreaker.CircuitBreaker
	bufferSize int
	policy     domain.OverflowPolicy
}

// NewBus creates a Redis-backed bus on top of an established client.
func NewBus(client *Client, bufferSize int, policy domain.OverflowPolicy) *Bus {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-publish",
		Timeout: breakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Publish circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return &Bus{
		rdb:        client.rdb,
		breaker:    breaker,
		bufferSize: bufferSize,
		policy:     policy,
	}
}

// Publish marshals msg and publishes it on channel through the circuit
// breaker. An open breaker or a broker failure is reported as
// domain.ErrBrokerUnavailable.
func (b *Bus) Publish(ctx context.Context, channel string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = b.breaker.Execute(func() (any, error) {
		return nil, b.rdb.Publish(ctx, channel, data).Err()
	})
	if err != nil {
		metrics.BrokerPublishFailures.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: publish circuit open", domain.ErrBrokerUnavailable)
		}
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}

	metrics.MessagesPublishedTotal.WithLabelValues(channel).Inc()
	return nil
}

// Subscribe opens a Redis subscription on channel and bridges it into a
// bounded local sink. The returned subscription is registered with the
// broker before Subscribe returns.
func (b *Bus) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)

	// Wait for the broker to confirm the registration so no message
	// published after this call returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		pubsub:  pubsub,
		channel: channel,
		out:     make(chan domain.Message, b.bufferSize),
		cancel:  cancel,
	}

	metrics.ActiveSubscriptions.Inc()
	go sub.pump(pumpCtx, b.policy)

	return sub, nil
}

type subscription struct {
	pubsub  *goredis.PubSub
	channel string
	out     chan domain.Message
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *subscription) Messages() <-chan domain.Message { return s.out }

// Close unsubscribes from the broker. Idempotent; the local sink is
// closed by the pump goroutine once it unwinds.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
	})
}

// pump bridges broker deliveries into the bounded local sink, applying
// the overflow policy when the sink is full.
func (s *subscription) pump(ctx context.Context, policy domain.OverflowPolicy) {
	defer close(s.out)
	defer metrics.ActiveSubscriptions.Dec()

	msgCh := s.pubsub.Channel()
	for {
		select {
		case raw, ok := <-msgCh:
			if !ok {
				return
			}
			metrics.PubSubMessagesReceived.WithLabelValues(s.channel).Inc()

			var msg domain.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				slog.Warn("Failed to unmarshal pubsub message", "channel", s.channel, "error", err)
				continue
			}

			select {
			case s.out <- msg:
				metrics.MessagesDeliveredTotal.Inc()
				continue
			default:
			}

			switch policy {
			case domain.OverflowDropOldest:
				select {
				case <-s.out:
					metrics.MessagesDroppedTotal.WithLabelValues("overflow_evicted").Inc()
				default:
				}
				select {
				case s.out <- msg:
					metrics.MessagesDeliveredTotal.Inc()
				default:
					metrics.MessagesDroppedTotal.WithLabelValues("overflow_dropped").Inc()
				}
			default:
				slog.Warn("Disconnecting slow subscriber", "channel", s.channel)
				metrics.SlowSubscribersEvicted.Inc()
				s.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
