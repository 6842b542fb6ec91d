package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

// fakeConn stands in for a client websocket. Frames pushed with send are
// returned from ReadMessage; writes and deadlines are recorded for assertions.
type fakeConn struct {
	inbound      chan []byte
	closed       chan struct{}
	once         sync.Once
	mu           sync.Mutex
	writes       []string
	readDeadline time.Time
	pongHandler  func(string) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) send(t *testing.T, content string) {
	t.Helper()
	select {
	case c.inbound <- []byte(content):
	case <-time.After(time.Second):
		t.Fatal("session did not read the frame")
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(data))
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

func (c *fakeConn) deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readDeadline
}

func (c *fakeConn) pong(t *testing.T) {
	c.mu.Lock()
	h := c.pongHandler
	c.mu.Unlock()
	require.NotNil(t, h, "no pong handler installed")
	require.NoError(t, h(""))
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	copy(out, c.writes)
	return out
}

// trackingBroker wraps another broker and records whether each subscription
// was released.
type trackingBroker struct {
	pubsub.Broker
	mu           sync.Mutex
	unsubscribed int
}

type trackingSubscription struct {
	pubsub.Subscription
	broker *trackingBroker
	once   sync.Once
}

func (s *trackingSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		s.broker.unsubscribed++
		s.broker.mu.Unlock()
	})
	s.Subscription.Unsubscribe()
}

func (b *trackingBroker) Subscribe(ctx context.Context, channel string) (pubsub.Subscription, error) {
	sub, err := b.Broker.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return &trackingSubscription{Subscription: sub, broker: b}, nil
}

func (b *trackingBroker) released() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribed
}

type relayFixture struct {
	store  *store.Memory
	broker *trackingBroker
	svc    *service.MessageService
	log    *logger.Logger
	conv   *model.Conversation
	userA  int64
	userB  int64
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	a, err := st.CreateUser(ctx, "alice", "alice@example.com", "hash")
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	conv, err := st.CreateConversation(ctx, a.ID, b.ID)
	require.NoError(t, err)

	broker := &trackingBroker{Broker: pubsub.NewMemoryBroker()}
	log := &logger.Logger{Logger: zap.NewNop()}

	return &relayFixture{
		store:  st,
		broker: broker,
		svc:    service.NewMessageService(st, broker, nil, log),
		log:    log,
		conv:   conv,
		userA:  a.ID,
		userB:  b.ID,
	}
}

// start runs a session in the background and returns its exit channel.
func (f *relayFixture) start(t *testing.T, ctx context.Context, conn Conn, userID int64) (*Session, <-chan error) {
	t.Helper()
	s := NewSession(conn, f.conv.ID, userID, f.svc, f.broker, f.log)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.State() == StateActive },
		time.Second, 5*time.Millisecond, "session never became active")
	return s, done
}

func waitExit(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("session did not exit")
		return nil
	}
}

func TestSessionRelaysToPeerWithoutEcho(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	connA := newFakeConn()
	connB := newFakeConn()
	sessA, doneA := f.start(t, ctx, connA, f.userA)
	sessB, doneB := f.start(t, ctx, connB, f.userB)

	connA.send(t, "hello bob")

	require.Eventually(t, func() bool {
		w := connB.written()
		return len(w) == 1 && w[0] == "hello bob"
	}, time.Second, 5*time.Millisecond)

	// The sender never receives their own message back.
	require.Empty(t, connA.written())

	// The message is durable regardless of delivery.
	page, _, err := f.store.PageMessages(ctx, f.conv.ID, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "hello bob", page[0].Content)
	require.Equal(t, f.userA, page[0].SenderID)

	connA.Close()
	connB.Close()
	require.NoError(t, waitExit(t, doneA))
	require.NoError(t, waitExit(t, doneB))
	require.Equal(t, StateClosed, sessA.State())
	require.Equal(t, StateClosed, sessB.State())
	require.Equal(t, 2, f.broker.released())
}

func TestSessionIgnoresWhitespaceFrames(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	conn := newFakeConn()
	sess, done := f.start(t, ctx, conn, f.userA)

	conn.send(t, "   \n\t ")
	conn.send(t, "real message")

	require.Eventually(t, func() bool {
		page, _, err := f.store.PageMessages(ctx, f.conv.ID, nil, 10)
		return err == nil && len(page) == 1
	}, time.Second, 5*time.Millisecond)

	page, _, err := f.store.PageMessages(ctx, f.conv.ID, nil, 10)
	require.NoError(t, err)
	require.Equal(t, "real message", page[0].Content)
	require.Equal(t, StateActive, sess.State())

	conn.Close()
	require.NoError(t, waitExit(t, done))
}

func TestSessionSurvivesMalformedNotification(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	conn := newFakeConn()
	sess, done := f.start(t, ctx, conn, f.userB)

	channel := pubsub.ChannelFor(f.conv.ID)
	require.NoError(t, f.broker.Publish(ctx, channel, []byte("{not json")))

	// A well-formed notification after the garbage still arrives.
	_, err := f.svc.Send(ctx, f.conv.ID, f.userA, "still here")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		w := conn.written()
		return len(w) == 1 && w[0] == "still here"
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, StateActive, sess.State())

	conn.Close()
	require.NoError(t, waitExit(t, done))
}

func TestSessionClosesOnPersistFailure(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	// An intruding session slipped past the gate must fail closed on its
	// first write attempt.
	outsider, err := f.store.CreateUser(ctx, "mallory", "mallory@example.com", "hash")
	require.NoError(t, err)

	conn := newFakeConn()
	sess, done := f.start(t, ctx, conn, outsider.ID)

	conn.send(t, "let me in")

	err = waitExit(t, done)
	require.ErrorIs(t, err, store.ErrNotParticipant)
	require.Equal(t, StateClosed, sess.State())
	require.Equal(t, 1, f.broker.released())
}

func TestSessionArmsReadDeadlineAndPongRefresh(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	conn := newFakeConn()
	_, done := f.start(t, ctx, conn, f.userA)

	first := conn.deadline()
	require.False(t, first.IsZero(), "read deadline must be armed before the loop starts")

	time.Sleep(10 * time.Millisecond)
	conn.pong(t)
	require.True(t, conn.deadline().After(first), "pong must push the read deadline out")

	conn.Close()
	require.NoError(t, waitExit(t, done))
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	f := newRelayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	conn := newFakeConn()
	sess, done := f.start(t, ctx, conn, f.userA)

	cancel()
	require.NoError(t, waitExit(t, done))
	require.Equal(t, StateClosed, sess.State())
	require.Equal(t, 1, f.broker.released())
}
