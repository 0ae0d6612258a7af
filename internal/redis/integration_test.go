package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
)

var (
	testRedisURL string
	redContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	// Parse flags to check for -short
	flag.Parse()

	// Skip container setup if running in short mode
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	redContainer, err = tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := redContainer.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	defer func() {
		if err := redContainer.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
		}
	}()
	os.Exit(m.Run())
}

func setupTestBus(t *testing.T, policy domain.OverflowPolicy) *Bus {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewBus(client, 16, policy)
}

func recvMessage(t *testing.T, sub domain.Subscription) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return domain.Message{}
	}
}

func TestClient_Ping(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, testRedisURL)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(ctx))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestBus_PublishSubscribeRoundTrip(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, domain.ChannelMessages)
	require.NoError(t, err)
	defer sub.Close()

	sent := domain.Message{ID: "m1", Text: "hello", Sender: "alice", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, b.Publish(ctx, domain.ChannelMessages, sent))

	got := recvMessage(t, sub)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Text, got.Text)
	assert.Equal(t, sent.Sender, got.Sender)
	assert.True(t, sent.CreatedAt.Equal(got.CreatedAt))
}

func TestBus_FanOutToAllSubscribers(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)
	ctx := context.Background()

	sub1, err := b.Subscribe(ctx, domain.ChannelMessages)
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := b.Subscribe(ctx, domain.ChannelMessages)
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, b.Publish(ctx, domain.ChannelMessages,
		domain.Message{ID: "m1", Text: "hi", Sender: "alice"}))

	assert.Equal(t, "m1", recvMessage(t, sub1).ID)
	assert.Equal(t, "m1", recvMessage(t, sub2).ID)
}

func TestBus_PreservesPublishOrder(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, domain.ChannelMessages)
	require.NoError(t, err)
	defer sub.Close()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(ctx, domain.ChannelMessages,
			domain.Message{ID: fmt.Sprintf("m%d", i), Text: "x", Sender: "alice"}))
	}

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), recvMessage(t, sub).ID)
	}
}

func TestBus_ChannelsAreIsolated(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "other:channel")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, domain.ChannelMessages,
		domain.Message{ID: "m1", Text: "hi", Sender: "alice"}))

	select {
	case msg := <-sub.Messages():
		t.Fatalf("message leaked across channels: %q", msg.ID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_SubscriptionCloseIsIdempotent(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)

	sub, err := b.Subscribe(context.Background(), domain.ChannelMessages)
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	// The local sink drains and closes after the broker unsubscribe.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Messages():
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBus_MalformedPayloadIsSkipped(t *testing.T) {
	b := setupTestBus(t, domain.OverflowDisconnect)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, domain.ChannelMessages)
	require.NoError(t, err)
	defer sub.Close()

	// Raw publish bypassing the codec.
	require.NoError(t, b.rdb.Publish(ctx, domain.ChannelMessages, "{not json").Err())
	require.NoError(t, b.Publish(ctx, domain.ChannelMessages,
		domain.Message{ID: "m1", Text: "hi", Sender: "alice"}))

	assert.Equal(t, "m1", recvMessage(t, sub).ID, "malformed payload must not wedge the subscription")
}
