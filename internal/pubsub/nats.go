package pubsub

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/pkg/logger"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSBroker implements Broker on core NATS subjects, for deployments that
// already run NATS instead of leaning on the database's notification channel.
type NATSBroker struct {
	conn *nats.Conn
	log  *logger.Logger
}

// ConnectNATS establishes a connection to the NATS server.
func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATSBroker, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("pubsub: create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect to NATS: %w", err)
	}

	return &NATSBroker{conn: nc, log: log}, nil
}

// Publish emits payload on the subject named by channel.
func (b *NATSBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", channel, err)
	}
	return nil
}

type natsSubscription struct {
	sub    *nats.Subscription
	ch     chan []byte
	mu     sync.Mutex
	closed bool
}

func (s *natsSubscription) C() <-chan []byte { return s.ch }

func (s *natsSubscription) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- data:
	default:
		// Subscriber is not draining; drop rather than block the dispatcher.
	}
}

func (s *natsSubscription) Unsubscribe() {
	_ = s.sub.Unsubscribe()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.ch)
}

// Subscribe registers a subject subscription delivering into a buffered channel.
func (b *NATSBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	out := &natsSubscription{ch: make(chan []byte, subscriberBuffer)}

	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		out.deliver(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub: subscribe %s: %w", channel, err)
	}
	out.sub = sub
	return out, nil
}

// Ping verifies the connection is up.
func (b *NATSBroker) Ping(ctx context.Context) error {
	if b.conn == nil || !b.conn.IsConnected() {
		return errors.New("pubsub: NATS not connected")
	}
	return nil
}

// Close closes the NATS connection.
func (b *NATSBroker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
