package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/pkg/logger"
)

// PostgresBroker implements Broker on Postgres LISTEN/NOTIFY. Publish rides
// the shared pool; each subscription holds one dedicated connection for the
// lifetime of its session.
type PostgresBroker struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewPostgresBroker wraps an existing pgx pool.
func NewPostgresBroker(pool *pgxpool.Pool, log *logger.Logger) *PostgresBroker {
	return &PostgresBroker{pool: pool, log: log}
}

// Publish emits payload on channel via pg_notify.
func (b *PostgresBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload))
	if err != nil {
		return fmt.Errorf("pubsub: notify %s: %w", channel, err)
	}
	return nil
}

type postgresSubscription struct {
	conn    *pgxpool.Conn
	channel string
	ch      chan []byte
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
}

func (s *postgresSubscription) C() <-chan []byte { return s.ch }

func (s *postgresSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Subscribe acquires a dedicated connection, issues LISTEN and pumps
// notifications until Unsubscribe or connection failure.
func (b *PostgresBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub: acquire listener connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pubsub: listen %s: %w", channel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &postgresSubscription{
		conn:    conn,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.pump(listenCtx, sub)
	return sub, nil
}

func (b *PostgresBroker) pump(ctx context.Context, sub *postgresSubscription) {
	defer close(sub.done)
	defer close(sub.ch)
	defer sub.release()

	for {
		n, err := sub.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.log.Warn("notification connection failed",
					zap.String("channel", sub.channel), zap.Error(err))
			}
			return
		}
		select {
		case sub.ch <- []byte(n.Payload):
		case <-ctx.Done():
			return
		default:
			// Subscriber is not draining; drop rather than block the listener.
		}
	}
}

func (s *postgresSubscription) release() {
	// Best effort; a broken connection is discarded by the pool on release.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = s.conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{s.channel}.Sanitize())
	s.conn.Release()
}

// Ping verifies database connectivity.
func (b *PostgresBroker) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the store layer.
func (b *PostgresBroker) Close() {}
