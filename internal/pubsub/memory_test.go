package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscription) []byte {
	t.Helper()
	select {
	case payload, ok := <-sub.C():
		require.True(t, ok, "subscription channel closed unexpectedly")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestChannelFor(t *testing.T) {
	id := uuid.New()
	require.Equal(t, "conversation_"+id.String(), ChannelFor(id))
}

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()
	channel := ChannelFor(uuid.New())

	sub1, err := b.Subscribe(ctx, channel)
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, channel)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, channel, []byte("hello")))
	require.Equal(t, []byte("hello"), receive(t, sub1))
	require.Equal(t, []byte("hello"), receive(t, sub2))
}

func TestMemoryBrokerChannelIsolation(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, ChannelFor(uuid.New()))
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ChannelFor(uuid.New()), []byte("elsewhere")))

	select {
	case payload := <-sub.C():
		t.Fatalf("received payload from another channel: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBrokerUnsubscribeIdempotent(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()
	channel := ChannelFor(uuid.New())

	sub, err := b.Subscribe(ctx, channel)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C()
	require.False(t, ok, "channel must be closed after unsubscribe")

	// Publishing after the only subscriber left is a no-op.
	require.NoError(t, b.Publish(ctx, channel, []byte("nobody home")))
}

func TestMemoryBrokerSlowSubscriberDrops(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()
	channel := ChannelFor(uuid.New())

	sub, err := b.Subscribe(ctx, channel)
	require.NoError(t, err)

	// Overfill the buffer; the publisher must not block.
	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, b.Publish(ctx, channel, []byte("x")))
	}

	drained := 0
	for {
		select {
		case <-sub.C():
			drained++
			continue
		default:
		}
		break
	}
	require.Equal(t, subscriberBuffer, drained)
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, ChannelFor(uuid.New()))
	require.NoError(t, err)

	b.Close()

	_, ok := <-sub.C()
	require.False(t, ok, "close must end all subscriptions")

	// Unsubscribe after Close is still safe.
	sub.Unsubscribe()
}
