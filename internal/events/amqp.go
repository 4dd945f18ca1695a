package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nerrad567/twc-director/internal/host"
	"github.com/nerrad567/twc-director/internal/infrastructure/config"
)

// Reconnect backoff. MaxElapsedTime zero means retry until closed.
const (
	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = time.Minute
	reconnectMultiplier      = 1.7
)

// Logger is the logging surface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AMQPSink publishes trigger events to a fanout exchange. The connection
// is re-established in the background when the broker drops it.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type AMQPSink struct {
	url      string
	exchange string
	dial     dialFunc
	logger   Logger
	interval time.Duration

	mu     sync.RWMutex
	sess   session
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAMQPSink creates a sink from configuration. Call Start to connect.
func NewAMQPSink(cfg config.AMQPConfig, logger Logger) (*AMQPSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("events: AMQP URL is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("events: AMQP exchange is required")
	}
	return newSink(cfg.URL, cfg.Exchange, dialAMQP, logger), nil
}

func newSink(url, exchange string, dial dialFunc, logger Logger) *AMQPSink {
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AMQPSink{
		url:      url,
		exchange: exchange,
		dial:     dial,
		logger:   logger,
		interval: reconnectInitialInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start connects with exponential backoff until ctx is done, then watches
// the connection for closure.
func (s *AMQPSink) Start(ctx context.Context) error {
	if err := backoff.Retry(s.connect, backoff.WithContext(s.backOff(), ctx)); err != nil {
		return fmt.Errorf("events: connecting to AMQP broker: %w", err)
	}
	s.logger.Info("amqp event sink connected", "exchange", s.exchange)
	return nil
}

func (s *AMQPSink) connect() error {
	sess, err := s.dial(s.url)
	if err != nil {
		return err
	}
	if err := sess.declare(s.exchange); err != nil {
		sess.close()
		return fmt.Errorf("declaring exchange %s: %w", s.exchange, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.close()
		return backoff.Permanent(ErrClosed)
	}
	s.sess = sess
	s.mu.Unlock()

	closed := sess.notifyClose()
	s.wg.Add(1)
	go s.watch(closed)
	return nil
}

// watch waits for the broker to drop the connection and reconnects.
func (s *AMQPSink) watch(closed <-chan *amqp.Error) {
	defer s.wg.Done()

	var reason *amqp.Error
	select {
	case <-s.ctx.Done():
		return
	case reason = <-closed:
	}

	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()
	if reason == nil {
		return
	}
	s.logger.Warn("amqp connection lost", "error", reason)

	reconnect := func() error {
		err := s.connect()
		if err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Warn("amqp reconnect failed", "error", err)
		}
		return err
	}
	if err := backoff.Retry(reconnect, backoff.WithContext(s.backOff(), s.ctx)); err != nil {
		return
	}
	s.logger.Info("amqp reconnected", "exchange", s.exchange)
}

func (s *AMQPSink) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	b.MaxInterval = reconnectMaxInterval
	b.Multiplier = reconnectMultiplier
	b.MaxElapsedTime = 0
	return b
}

// Name implements host.EventSink.
func (s *AMQPSink) Name() string { return "amqp" }

// Emit implements host.EventSink.
func (s *AMQPSink) Emit(ctx context.Context, ev host.Event) error {
	s.mu.RLock()
	sess, closed := s.sess, s.closed
	s.mu.RUnlock()
	switch {
	case closed:
		return ErrClosed
	case sess == nil:
		return ErrNotConnected
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := sess.publish(ctx, s.exchange, body); err != nil {
		return fmt.Errorf("publishing event %s: %w", ev.EventID, err)
	}
	return nil
}

// Connected reports whether a channel is currently open.
func (s *AMQPSink) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess != nil
}

// Close stops reconnecting and closes the connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	s.cancel()
	var err error
	if sess != nil {
		err = sess.close()
	}
	s.wg.Wait()
	return err
}

var _ host.EventSink = (*AMQPSink)(nil)
