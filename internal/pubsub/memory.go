package pubsub

import (
	"context"
	"sync"
)

// subscriberBuffer bounds how far a slow session may lag before
// notifications are dropped. Dropped notifications are recoverable through
// the historical read path.
const subscriberBuffer = 32

// MemoryBroker is an in-process Broker for tests and single-node deployments.
// It dispatches directly to subscribers without an external round trip.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroker constructs an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *memorySubscription) C() <-chan []byte { return s.ch }

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.ch)
	})
}

// Publish delivers payload to every current subscriber of channel.
func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			// Subscriber is not draining; drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe registers a new subscription on channel.
func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		broker:  b,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[channel]
	if set == nil {
		set = make(map[*memorySubscription]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.channel]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.channel)
	}
}

// Ping always succeeds.
func (b *MemoryBroker) Ping(ctx context.Context) error { return nil }

// Close ends all subscriptions.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	var all []*memorySubscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.subs = make(map[string]map[*memorySubscription]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.once.Do(func() { close(sub.ch) })
	}
}
