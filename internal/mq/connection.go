package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultDialTimeout = 30 * time.Second

// Config — параметры подключения к RabbitMQ.
type Config struct {
	URL      string
	Topology Topology

	// Prefetch — QoS канала потребителя, равен concurrency воркера.
	Prefetch int

	// DialTimeout — таймаут TCP и AMQP handshake.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Client открывает сессии с брокером.
//
// Client не переподключается сам: одна попытка Dial — одна сессия.
// Повторы с backoff делает владелец (Worker Loop).
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// NewClient создаёт Client.
func NewClient(cfg Config) *Client {
	if cfg.Topology.Queue == "" {
		cfg.Topology = DefaultTopology("")
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: cfg.Logger}
}

// Topology возвращает топологию клиента.
func (c *Client) Topology() Topology {
	return c.cfg.Topology
}

// Dial открывает соединение, объявляет топологию, выставляет QoS
// и начинает потребление из рабочей очереди.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	conn, ch, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: set qos: %w", ErrConnection, err)
	}

	deliveries, err := ch.Consume(
		c.cfg.Topology.Queue, // queue
		"",                   // consumer tag (auto-generated)
		false,                // auto-ack (мы ack вручную)
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,                  // args
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: consume: %w", ErrConnection, err)
	}

	c.logger.Info("connected to RabbitMQ",
		"queue", c.cfg.Topology.Queue,
		"prefetch", c.cfg.Prefetch,
	)

	return newSession(conn, ch, deliveries, c.logger), nil
}

// DialPublisher открывает отдельное соединение для публикации
// с подтверждениями (publisher confirms).
func (c *Client) DialPublisher(ctx context.Context) (*Publisher, error) {
	conn, ch, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: enable confirms: %w", ErrConnection, err)
	}

	return newPublisher(conn, ch, c.cfg.Topology.Queue, c.logger), nil
}

// open устанавливает соединение, открывает канал и объявляет топологию.
func (c *Client) open(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      dialContext(ctx, c.cfg.DialTimeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial amqp: %w", ErrConnection, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: open channel: %w", ErrConnection, err)
	}

	if err := c.cfg.Topology.Declare(ch); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return conn, ch, nil
}

// dialContext — как amqp.DefaultDial, но с отменой через ctx.
// Дедлайн покрывает handshake; после него amqp сам его снимает.
func dialContext(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// Session — одно соединение с брокером и канал потребителя.
//
// Receive вызывается одним владельцем; Ack/Nack полученных Delivery
// безопасны из разных горутин.
type Session struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newSession(conn *amqp.Connection, ch *amqp.Channel, deliveries <-chan amqp.Delivery, logger *slog.Logger) *Session {
	return &Session{
		conn:       conn,
		ch:         ch,
		deliveries: deliveries,
		logger:     logger,
	}
}

// Receive ждёт следующее сообщение.
//
// Возвращает ErrConnectionLost, если канал доставки закрыт,
// и ctx.Err() при отмене контекста.
func (s *Session) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case raw, ok := <-s.deliveries:
		if !ok {
			return nil, s.lostError()
		}
		return NewDelivery(raw), nil
	}
}

// lostError добавляет причину закрытия, если она известна.
func (s *Session) lostError() error {
	if s.conn != nil && s.conn.IsClosed() {
		return fmt.Errorf("%w: connection closed", ErrConnectionLost)
	}
	return fmt.Errorf("%w: deliveries channel closed", ErrConnectionLost)
}

// Healthy сообщает, открыто ли соединение.
func (s *Session) Healthy() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// Close закрывает канал и соединение. Повторный вызов безопасен.
// Неподтверждённые сообщения брокер вернёт в очередь.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.ch != nil {
			if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close channel: %w", err))
			}
		}
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("broker session closed")
	})
	return s.closeErr
}
