package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/store"
)

func TestSendPublishesOneNotification(t *testing.T) {
	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	svc := NewMessageService(st, broker, nil, nopLogger())
	ctx := context.Background()

	alice, bob := seedPair(t, st)
	conv, err := st.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, pubsub.ChannelFor(conv.ID))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := svc.Send(ctx, conv.ID, alice, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Content)

	select {
	case payload := <-sub.C():
		n, err := DecodeNotification(payload)
		require.NoError(t, err)
		require.Equal(t, alice, n.SenderID)
		require.Equal(t, "hello", n.Content)
		require.True(t, n.SentAt.Equal(msg.SentAt))
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}

	// Exactly one.
	select {
	case payload := <-sub.C():
		t.Fatalf("unexpected second notification: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendFailedPersistPublishesNothing(t *testing.T) {
	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	svc := NewMessageService(st, broker, nil, nopLogger())
	ctx := context.Background()

	alice, bob := seedPair(t, st)
	conv, err := st.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	outsider, err := st.CreateUser(ctx, "carol", "carol@example.com", "hash")
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, pubsub.ChannelFor(conv.ID))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = svc.Send(ctx, conv.ID, outsider.ID, "intrusion")
	require.ErrorIs(t, err, store.ErrNotParticipant)

	select {
	case payload := <-sub.C():
		t.Fatalf("notification published for failed persist: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

// notifyingStore records atomic insert-and-notify calls.
type notifyingStore struct {
	*store.Memory
	channels []string
}

func (s *notifyingStore) InsertMessageAndNotify(ctx context.Context, conversationID uuid.UUID, senderID int64, content, channel string) (*model.Message, error) {
	msg, err := s.InsertMessage(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}
	s.channels = append(s.channels, channel)
	return msg, nil
}

func TestSendUsesAtomicPathWhenAvailable(t *testing.T) {
	ns := &notifyingStore{Memory: store.NewMemory()}
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	svc := NewMessageService(ns.Memory, broker, ns, nopLogger())
	ctx := context.Background()

	alice, bob := seedPair(t, ns.Memory)
	conv, err := ns.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	sub, err := broker.Subscribe(ctx, pubsub.ChannelFor(conv.ID))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := svc.Send(ctx, conv.ID, alice, "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)

	// The notification rides the persist, not the broker.
	require.Equal(t, []string{pubsub.ChannelFor(conv.ID)}, ns.channels)
	select {
	case payload := <-sub.C():
		t.Fatalf("broker publish on the atomic path: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}

	// A failed persist still emits nothing.
	outsider, err := ns.CreateUser(ctx, "carol", "carol@example.com", "hash")
	require.NoError(t, err)
	_, err = svc.Send(ctx, conv.ID, outsider.ID, "intrusion")
	require.ErrorIs(t, err, store.ErrNotParticipant)
	require.Len(t, ns.channels, 1)
}

func TestDecodeNotificationMalformed(t *testing.T) {
	_, err := DecodeNotification([]byte("{truncated"))
	require.Error(t, err)
}

func TestPageDefaultsAndCursor(t *testing.T) {
	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	svc := NewMessageService(st, broker, nil, nopLogger())
	ctx := context.Background()

	alice, bob := seedPair(t, st)
	conv, err := st.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.Send(ctx, conv.ID, alice, "msg")
		require.NoError(t, err)
	}

	// Zero and negative limits fall back to the default page size.
	resp, err := svc.Page(ctx, conv.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 5)
	require.False(t, resp.HasMore)
	require.NotEmpty(t, resp.NextCursor)

	// The cursor is the oldest entry's sent time and pages do not overlap.
	resp, err = svc.Page(ctx, conv.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3)
	require.True(t, resp.HasMore)

	cursorTime, err := time.Parse(time.RFC3339Nano, resp.NextCursor)
	require.NoError(t, err)
	require.True(t, cursorTime.Equal(resp.Messages[2].SentAt))

	rest, err := svc.Page(ctx, conv.ID, &cursorTime, 3)
	require.NoError(t, err)
	require.Len(t, rest.Messages, 2)
	require.False(t, rest.HasMore)
	for _, m := range rest.Messages {
		require.True(t, m.SentAt.Before(cursorTime))
	}
}

func TestEditAndDeleteDelegateAuthorship(t *testing.T) {
	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	defer broker.Close()
	svc := NewMessageService(st, broker, nil, nopLogger())
	ctx := context.Background()

	alice, bob := seedPair(t, st)
	conv, err := st.CreateConversation(ctx, alice, bob)
	require.NoError(t, err)

	msg, err := svc.Send(ctx, conv.ID, alice, "draft")
	require.NoError(t, err)

	_, err = svc.Edit(ctx, conv.ID, msg.ID, bob, "forged")
	require.ErrorIs(t, err, store.ErrNotAuthor)

	editedAt, err := svc.Edit(ctx, conv.ID, msg.ID, alice, "final")
	require.NoError(t, err)
	require.False(t, editedAt.IsZero())

	require.ErrorIs(t, svc.Delete(ctx, conv.ID, msg.ID, bob), store.ErrNotAuthor)
	require.NoError(t, svc.Delete(ctx, conv.ID, msg.ID, alice))
	require.ErrorIs(t, svc.Delete(ctx, conv.ID, uuid.New(), alice), store.ErrNotFound)
}
