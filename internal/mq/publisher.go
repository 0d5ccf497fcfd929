package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/courier/internal/codec"
	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/telemetry"
)

// ErrNotConfirmed — брокер ответил nack на публикацию.
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

// publishChannel — часть *amqp.Channel, нужная Publisher.
type publishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher публикует задачи в рабочую очередь.
// Используется продюсерами и CLI; воркер сам ничего не публикует.
type Publisher struct {
	conn   *amqp.Connection
	ch     publishChannel
	queue  string
	logger *slog.Logger

	// канал в confirm-режиме нельзя использовать конкурентно
	mu sync.Mutex
}

func newPublisher(conn *amqp.Connection, ch publishChannel, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		logger: logger,
	}
}

// PublishTask сериализует задачу в конверт и ждёт подтверждения брокера.
//
// MessageId = task.ID, поэтому legacy-потребители тоже видят ключ
// идемпотентности. Trace context из ctx передаётся в заголовках.
func (p *Publisher) PublishTask(ctx context.Context, task *domain.Task) error {
	body, err := codec.Encode(task)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "mq.publish")
	defer span.End()

	headers := amqp.Table{}
	telemetry.InjectHeaders(ctx, headers)

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    task.ID,
		Timestamp:    task.EnqueuedAt,
		Type:         string(task.Kind),
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, msg)
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	// nil — канал не в confirm-режиме
	if confirm != nil {
		ok, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("wait confirm: %w", err)
		}
		if !ok {
			telemetry.SetSpanError(ctx, ErrNotConfirmed)
			return ErrNotConfirmed
		}
	}

	p.logger.Debug("published task",
		"queue", p.queue,
		"task_id", task.ID,
		"kind", task.Kind,
	)
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
