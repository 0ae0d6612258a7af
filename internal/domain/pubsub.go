package domain

import (
	"context"
	"fmt"
)

// ChannelMessages is the single channel all chat messages flow through.
// The Bus API is keyed by channel name, so additional streams can be
// added without touching the fan-out logic.
const ChannelMessages = "messages:added"

// Subscription is one live registration on a Bus channel. Messages arrive
// in publish order. Close unsubscribes; it is idempotent and safe to call
// after the subscription has already been torn down. After Close the
// Messages channel is closed and no further deliveries occur.
type Subscription interface {
	Messages() <-chan Message
	Close()
}

// Bus decouples publishers from subscribers with per-channel FIFO fan-out.
type Bus interface {
	// Subscribe registers a new sink on channel. The subscription receives
	// only messages published strictly after registration - no replay.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Publish delivers msg to every subscription currently registered on
	// channel, in publish order. Publishing to a channel with no
	// subscribers is a no-op. A slow subscriber never delays delivery to
	// the others; full sinks are resolved by the bus's overflow policy.
	Publish(ctx context.Context, channel string, msg Message) error
}

// OverflowPolicy decides what happens when a subscriber's buffer is full
// at delivery time.
type OverflowPolicy string

const (
	// OverflowDisconnect closes the slow subscription.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropOldest evicts the oldest queued message to make room.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// ParseOverflowPolicy converts a configuration string into a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(s) {
	case OverflowDisconnect:
		return OverflowDisconnect, nil
	case OverflowDropOldest:
		return OverflowDropOldest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}
