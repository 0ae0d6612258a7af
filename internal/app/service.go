package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
)

// Service is the submission gateway.
type Service struct {
	factory *domain.MessageFactory
	bus     domain.Bus
	limiter *rate.Limiter
}

// NewService creates the gateway. perSecond and burst bound the instance-wide
// submission rate with a token bucket.
func NewService(factory *domain.MessageFactory, bus domain.Bus, perSecond float64, burst int) *Service {
	return &Service{
		factory: factory,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Submit validates the submission, creates the message, and publishes it
// to the message channel. On any error nothing is published. The returned
// message is the same record subscribers will receive.
func (s *Service) Submit(ctx context.Context, text, sender string) (domain.Message, error) {
	msg, err := s.factory.Create(text, sender)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return domain.Message{}, err
	}

	if !s.limiter.Allow() {
		metrics.SubmissionsTotal.WithLabelValues("rate_limited").Inc()
		return domain.Message{}, domain.ErrRateLimited
	}

	if err := s.bus.Publish(ctx, domain.ChannelMessages, msg); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("publish_failed").Inc()
		return domain.Message{}, fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	slog.Debug("Message published", "message_id", msg.ID, "sender", msg.Sender)
	return msg, nil
}
