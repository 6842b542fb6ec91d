// Package pubsub abstracts the per-conversation notification channel used to
// fan out newly persisted messages to live sessions. Implementations exist
// for Postgres LISTEN/NOTIFY, NATS and an in-process broker.
package pubsub

import (
	"context"

	"github.com/google/uuid"
)

// ChannelPrefix prepends every conversation channel name.
const ChannelPrefix = "conversation_"

// ChannelFor derives the notification channel name for a conversation. The
// store's publish side and every session's subscribe side must agree on it.
func ChannelFor(conversationID uuid.UUID) string {
	return ChannelPrefix + conversationID.String()
}

// Subscription is one live subscription to a single channel.
type Subscription interface {
	// C delivers raw payloads. The channel is closed when the subscription
	// ends, whether by Unsubscribe or by transport failure.
	C() <-chan []byte
	// Unsubscribe releases the subscription. Safe to call more than once and
	// after the underlying transport has already failed.
	Unsubscribe()
}

// Broker is the publish/subscribe capability the relay is built on.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Ping(ctx context.Context) error
	Close()
}
