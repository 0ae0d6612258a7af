package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
)

const testChannel = "messages:added"

func testBus(t *testing.T, bufferSize int, policy domain.OverflowPolicy) *Bus {
	t.Helper()
	b := New(bufferSize, policy)
	t.Cleanup(b.Stop)
	return b
}

func testMessage(id, text string) domain.Message {
	return domain.Message{ID: id, Text: text, Sender: "alice"}
}

// sync waits until the actor has processed every command enqueued so far.
// A count command goes through the same FIFO as publishes, so its reply
// is a processing barrier.
func (b *Bus) sync() {
	b.SubscriberCount(testChannel)
}

// recv reads one message or fails the test after a timeout.
func recv(t *testing.T, sub domain.Subscription) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return domain.Message{}
	}
}

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := testBus(t, 16, domain.OverflowDisconnect)
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, testChannel, testMessage("m1", "hi")))

	got1 := recv(t, sub1)
	got2 := recv(t, sub2)
	assert.Equal(t, "hi", got1.Text)
	assert.Equal(t, "alice", got1.Sender)
	assert.Equal(t, got1.ID, got2.ID, "both subscribers see the same message ID")
}

func TestBus_GlobalFIFOPerSubscriber(t *testing.T) {
	b := testBus(t, 256, domain.OverflowDisconnect)
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(ctx, testChannel, testMessage(fmt.Sprintf("m%d", i), "x")))
	}

	for _, sub := range []domain.Subscription{sub1, sub2} {
		for i := 0; i < n; i++ {
			assert.Equal(t, fmt.Sprintf("m%d", i), recv(t, sub).ID)
		}
	}
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	b := testBus(t, 16, domain.OverflowDisconnect)
	ctx := context.Background()

	early, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, testChannel, testMessage("m1", "before")))
	b.sync()

	late, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, testChannel, testMessage("m2", "after")))

	assert.Equal(t, "m1", recv(t, early).ID)
	assert.Equal(t, "m2", recv(t, early).ID)
	assert.Equal(t, "m2", recv(t, late).ID, "late subscriber must not see history")
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := testBus(t, 16, domain.OverflowDisconnect)
	ctx := context.Background()

	gone, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)
	stays, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	gone.Close()
	b.sync()
	assert.Equal(t, 1, b.SubscriberCount(testChannel))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, testChannel, testMessage(fmt.Sprintf("m%d", i), "x")))
	}
	b.sync()

	// The closed subscription's channel is closed and drains empty.
	count := 0
	for range gone.Messages() {
		count++
	}
	assert.Zero(t, count, "closed subscription received messages")

	// The surviving subscription gets everything.
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), recv(t, stays).ID)
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := testBus(t, 16, domain.OverflowDisconnect)

	sub, err := b.Subscribe(context.Background(), testChannel)
	require.NoError(t, err)

	sub.Close()
	sub.Close()
	b.sync()

	assert.Equal(t, 0, b.SubscriberCount(testChannel))
}

func TestBus_PublishWithoutSubscribersIsNoop(t *testing.T) {
	b := testBus(t, 16, domain.OverflowDisconnect)

	err := b.Publish(context.Background(), testChannel, testMessage("m1", "x"))
	assert.NoError(t, err)
}

func TestBus_SlowSubscriberIsDisconnected(t *testing.T) {
	b := testBus(t, 2, domain.OverflowDisconnect)
	ctx := context.Background()

	slow, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)
	fast, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	// Drain the fast subscriber continuously; never read the slow one.
	fastMsgs := make(chan domain.Message, 16)
	go func() {
		for msg := range fast.Messages() {
			fastMsgs <- msg
		}
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, testChannel, testMessage(fmt.Sprintf("m%d", i), "x")))
	}
	b.sync()

	assert.Equal(t, 1, b.SubscriberCount(testChannel), "slow subscriber should be evicted")

	// The fast subscriber saw every message, in order, promptly.
	for i := 0; i < 5; i++ {
		select {
		case msg := <-fastMsgs:
			assert.Equal(t, fmt.Sprintf("m%d", i), msg.ID)
		case <-time.After(time.Second):
			t.Fatal("fast subscriber delayed by slow one")
		}
	}

	// The evicted subscription's channel ends.
	for range slow.Messages() {
	}
}

func TestBus_DropOldestKeepsNewestMessages(t *testing.T) {
	b := testBus(t, 2, domain.OverflowDropOldest)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Publish(ctx, testChannel, testMessage(fmt.Sprintf("m%d", i), "x")))
	}
	b.sync()

	// Buffer holds two slots; the two oldest were evicted.
	assert.Equal(t, "m2", recv(t, sub).ID)
	assert.Equal(t, "m3", recv(t, sub).ID)
	assert.Equal(t, 1, b.SubscriberCount(testChannel), "drop-oldest keeps the subscription alive")
}

func TestBus_StopClosesSubscriptions(t *testing.T) {
	b := New(16, domain.OverflowDisconnect)

	sub, err := b.Subscribe(context.Background(), testChannel)
	require.NoError(t, err)

	b.Stop()

	_, ok := <-sub.Messages()
	assert.False(t, ok, "subscription channel should be closed after Stop")

	err = b.Publish(context.Background(), testChannel, testMessage("m1", "x"))
	assert.ErrorIs(t, err, domain.ErrBusClosed)

	_, err = b.Subscribe(context.Background(), testChannel)
	assert.ErrorIs(t, err, domain.ErrBusClosed)

	// Stop twice is safe.
	b.Stop()
}

func TestBus_CloseAfterStopIsSafe(t *testing.T) {
	b := New(16, domain.OverflowDisconnect)

	sub, err := b.Subscribe(context.Background(), testChannel)
	require.NoError(t, err)

	b.Stop()
	sub.Close()
}

func TestBus_ConcurrentPublishersKeepPerSubscriberOrder(t *testing.T) {
	b := testBus(t, 1024, domain.OverflowDisconnect)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, testChannel)
	require.NoError(t, err)

	const publishers = 4
	const perPublisher = 50
	for p := 0; p < publishers; p++ {
		go func(p int) {
			for i := 0; i < perPublisher; i++ {
				_ = b.Publish(ctx, testChannel, testMessage(fmt.Sprintf("p%d-%d", p, i), "x"))
			}
		}(p)
	}

	// Each publisher's own messages must arrive in its send order.
	next := make(map[string]int)
	for i := 0; i < publishers * perPublisher; i++ {
		msg := recv(t, sub)
		var p, i int
		_, err := fmt.Sscanf(msg.ID, "p%d-%d", &p, &i)
		require.NoError(t, err)
		key := fmt.Sprintf("p%d", p)
		assert.Equal(t, next[key], i, "publisher %d messages out of order", p)
		next[key]++
	}
}
