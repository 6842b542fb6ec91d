package relay

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/pkg/logger"
	"github.com/pairchat/pairchat/pkg/metrics"
)

// State is a session's lifecycle position. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateAuthorized
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorized:
		return "authorized"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is the surface of a websocket connection the session uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session owns one live client connection to one conversation. Its event
// loop multiplexes client frames and bridge notifications until either side
// disconnects or an unrecoverable error occurs.
type Session struct {
	conn           Conn
	conversationID uuid.UUID
	userID         int64
	messages       *service.MessageService
	broker         pubsub.Broker
	logger         *logger.Logger
	state          atomic.Int32
}

// NewSession wraps an already-authorized connection. The participant gate
// must have passed before this point.
func NewSession(conn Conn, conversationID uuid.UUID, userID int64, messages *service.MessageService, broker pubsub.Broker, log *logger.Logger) *Session {
	s := &Session{
		conn:           conn,
		conversationID: conversationID,
		userID:         userID,
		messages:       messages,
		broker:         broker,
		logger:         log.WithSession(conversationID.String(), userID),
	}
	s.state.Store(int32(StateAuthorized))
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) transition(to State) {
	s.state.Store(int32(to))
	s.logger.Debug("session state", zap.String("state", to.String()))
}

// Run executes the session until disconnect. The bridge subscription is the
// session's only owned external resource and is released on every exit path.
func (s *Session) Run(ctx context.Context) error {
	sub, err := s.broker.Subscribe(ctx, pubsub.ChannelFor(s.conversationID))
	if err != nil {
		s.logger.Error("bridge subscription failed", zap.Error(err))
		s.shutdown(websocket.CloseInternalServerErr, "notification channel unavailable")
		return err
	}
	defer sub.Unsubscribe()

	s.transition(StateActive)
	metrics.IncrementSessions()
	defer metrics.DecrementSessions()

	// A peer that stops answering pings fails the next read once the
	// deadline lapses, which tears the session down instead of leaving it
	// and its subscription behind.
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	inbound := make(chan []byte)
	go s.readPump(inbound, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(websocket.CloseGoingAway, "server shutting down")
			return nil

		case frame, ok := <-inbound:
			if !ok {
				// Client closed the connection or the read failed.
				s.shutdown(websocket.CloseNormalClosure, "")
				return nil
			}
			content := strings.TrimSpace(string(frame))
			if content == "" {
				continue
			}
			if _, err := s.messages.Send(ctx, s.conversationID, s.userID, content); err != nil {
				s.logger.Error("failed to persist message", zap.Error(err))
				s.shutdown(websocket.CloseInternalServerErr, "message could not be saved")
				return err
			}

		case payload, ok := <-sub.C():
			if !ok {
				s.logger.Error("notification stream ended")
				s.shutdown(websocket.CloseInternalServerErr, "notification channel lost")
				return nil
			}
			if err := s.forward(payload); err != nil {
				s.shutdown(websocket.CloseNormalClosure, "")
				return nil
			}

		case <-ping.C:
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}
	}
}

// forward delivers one bridge payload to the client unless it is
// self-authored or malformed. Only a write failure is reported; malformed
// payloads never terminate the session.
func (s *Session) forward(payload []byte) error {
	n, err := service.DecodeNotification(payload)
	if err != nil {
		s.logger.Warn("malformed notification payload", zap.Error(err))
		metrics.NotificationsDiscarded.WithLabelValues("malformed").Inc()
		return nil
	}
	if n.SenderID == s.userID {
		// Never echo the sender's own message back to them.
		metrics.NotificationsDiscarded.WithLabelValues("self").Inc()
		return nil
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(n.Content)); err != nil {
		s.logger.Warn("failed to forward message", zap.Error(err))
		return err
	}
	metrics.NotificationsDelivered.Inc()
	return nil
}

// readPump moves client text frames onto the inbound channel. It exits, and
// closes the channel, when the read side fails or the session is done.
func (s *Session) readPump(inbound chan<- []byte, done <-chan struct{}) {
	defer close(inbound)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case inbound <- data:
		case <-done:
			return
		}
	}
}

// shutdown drives Draining then Closed, sending a best-effort close frame.
func (s *Session) shutdown(code int, reason string) {
	s.transition(StateDraining)
	deadline := time.Now().Add(writeWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
	s.transition(StateClosed)
}
