package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shaiso/courier/internal/backoff"
	"github.com/shaiso/courier/internal/codec"
	"github.com/shaiso/courier/internal/delivery"
	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/repo"
	"github.com/shaiso/courier/internal/telemetry"
)

const (
	defaultMaxAttempts = 5

	// recordTimeout — сколько ждём запись outcome, даже если процесс уже
	// останавливается: побочный эффект уже произошёл.
	recordTimeout = 5 * time.Second
)

// Delivery — сообщение брокера, как его видит Processor.
// Реализуется *mq.Delivery.
type Delivery interface {
	Body() []byte
	Meta() codec.Meta
	Headers() map[string]any
	Ack() error
	Nack(requeue bool) error
}

// OutcomeStore — хранилище outcomes. Реализуется *repo.OutcomeRepo.
//
// Record возвращает repo.ErrConflict, если outcome уже записан.
type OutcomeStore interface {
	AlreadyCompleted(ctx context.Context, taskID string) (bool, error)
	Record(ctx context.Context, outcome *domain.TaskOutcome) error
}

// ReceiptStore — аудит получения задач. Реализуется *repo.ReceiptRepo.
type ReceiptStore interface {
	Record(ctx context.Context, task *domain.Task, receivedAt time.Time) error
}

// Verdict — чем закончилась обработка сообщения.
type Verdict string

const (
	// VerdictAck — задача завершена (или уже была завершена раньше).
	VerdictAck Verdict = "ack"

	// VerdictRequeue — временная проблема хранилища, брокер доставит снова.
	VerdictRequeue Verdict = "requeue"

	// VerdictReject — сообщение не декодируется, уходит в DLQ.
	VerdictReject Verdict = "reject"

	// VerdictAbandon — обработка прервана остановкой; ни ack, ни nack.
	// Брокер вернёт сообщение в очередь после закрытия канала.
	VerdictAbandon Verdict = "abandon"
)

// ProcessorConfig — конфигурация Processor.
type ProcessorConfig struct {
	Store    OutcomeStore
	Receipts ReceiptStore // опционально
	Client   delivery.Client

	// Registry — обработчики kind (если nil — NewRegistry()).
	Registry *Registry

	// Decoder (если nil — codec.NewDecoder()).
	Decoder *codec.Decoder

	// MaxAttempts — всего вызовов Client на задачу (default: 5).
	MaxAttempts int

	// Retry — задержки между попытками доставки.
	Retry backoff.Policy

	// Clock (если nil — backoff.SystemClock).
	Clock backoff.Clock

	Metrics *Metrics
	Logger  *slog.Logger
}

// Processor обрабатывает одно сообщение от получения до ack.
//
// Порядок:
//  1. Decode; ошибка → nack(requeue=false)
//  2. AlreadyCompleted; true → ack без побочного эффекта
//  3. Доставка с ограниченным числом попыток
//  4. Record outcome → ack; ошибка хранилища → nack(requeue=true)
//
// Безопасен для конкурентного использования.
type Processor struct {
	store       OutcomeStore
	receipts    ReceiptStore
	client      delivery.Client
	registry    *Registry
	decoder     *codec.Decoder
	maxAttempts int
	retry       backoff.Policy
	clock       backoff.Clock
	metrics     *Metrics
	logger      *slog.Logger
}

// NewProcessor создаёт Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		store:       cfg.Store,
		receipts:    cfg.Receipts,
		client:      cfg.Client,
		registry:    cfg.Registry,
		decoder:     cfg.Decoder,
		maxAttempts: cfg.MaxAttempts,
		retry:       cfg.Retry,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.decoder == nil {
		p.decoder = codec.NewDecoder()
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.clock == nil {
		p.clock = backoff.SystemClock
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process обрабатывает сообщение и сам выполняет ack/nack.
//
// ctx отменяется только по истечении grace-периода остановки:
// тогда сообщение бросается без ack (VerdictAbandon).
func (p *Processor) Process(ctx context.Context, d Delivery) Verdict {
	verdict := p.process(ctx, d)
	p.metrics.Messages.WithLabelValues(string(verdict)).Inc()
	return verdict
}

func (p *Processor) process(ctx context.Context, d Delivery) Verdict {
	receivedAt := p.clock.Now()

	task, err := p.decoder.Decode(d.Body(), d.Meta())
	if err != nil {
		p.metrics.DecodeErrors.Inc()
		p.logger.Warn("dropping undecodable message",
			"message_id", d.Meta().MessageID,
			"error", err,
		)
		return p.settle(d, VerdictReject, p.logger)
	}

	ctx = telemetry.ExtractHeaders(ctx, d.Headers())
	ctx, span := telemetry.StartSpan(ctx, "worker.process",
		attribute.String("task.id", task.ID),
		attribute.String("task.kind", string(task.Kind)),
		attribute.Bool("task.redelivered", task.Redelivered),
	)
	defer span.End()

	logger := telemetry.WithTrace(ctx, telemetry.WithTaskID(p.logger, task.ID)).With("kind", task.Kind)
	p.metrics.QueueLatency.Observe(task.QueueLatency(receivedAt).Seconds())

	if p.receipts != nil {
		if err := p.receipts.Record(ctx, task, receivedAt); err != nil && ctx.Err() == nil {
			// аудит не влияет на обработку
			logger.Warn("failed to record receipt", "error", err)
		}
	}

	done, err := p.store.AlreadyCompleted(ctx, task.ID)
	if err != nil {
		if ctx.Err() != nil {
			return p.settle(d, VerdictAbandon, logger)
		}
		telemetry.SetSpanError(ctx, err)
		logger.Error("idempotency check failed", "error", err)
		return p.settle(d, VerdictRequeue, logger)
	}
	if done {
		p.metrics.Duplicates.Inc()
		telemetry.AddSpanEvent(ctx, "task.duplicate")
		logger.Info("task already completed, skipping", "redelivered", task.Redelivered)
		return p.settle(d, VerdictAck, logger)
	}

	p.metrics.InFlight.Inc()
	outcome, err := p.execute(ctx, task, logger)
	p.metrics.InFlight.Dec()
	if err != nil {
		logger.Warn("task interrupted by shutdown", "error", err)
		return p.settle(d, VerdictAbandon, logger)
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := p.store.Record(recordCtx, outcome); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			logger.Info("outcome already recorded by another worker")
			return p.settle(d, VerdictAck, logger)
		}
		telemetry.SetSpanError(ctx, err)
		logger.Error("failed to record outcome", "status", outcome.Status, "error", err)
		return p.settle(d, VerdictRequeue, logger)
	}

	p.metrics.Tasks.WithLabelValues(string(task.Kind), string(outcome.Status)).Inc()
	span.SetAttributes(
		attribute.String("task.status", string(outcome.Status)),
		attribute.Int("task.attempts", outcome.Attempts),
	)

	if outcome.Status == domain.OutcomeSucceeded {
		logger.Info("task succeeded", "attempts", outcome.Attempts)
	} else {
		logger.Warn("task failed permanently", "attempts", outcome.Attempts, "detail", outcome.Detail)
	}

	return p.settle(d, VerdictAck, logger)
}

// execute выполняет доставку с повторами и возвращает терминальный outcome.
// Ошибка возвращается только при отмене ctx.
func (p *Processor) execute(ctx context.Context, task *domain.Task, logger *slog.Logger) (*domain.TaskOutcome, error) {
	handler, err := p.registry.Get(task.Kind)
	if err != nil {
		return domain.NewOutcome(task, domain.OutcomeFailedPermanent, 0, err.Error()), nil
	}

	n, err := handler.Prepare(task)
	if err != nil {
		return domain.NewOutcome(task, domain.OutcomeFailedPermanent, 0, err.Error()), nil
	}

	b := backoff.New(p.retry)
	attempts := make([]domain.DeliveryAttempt, 0, p.maxAttempts)

	for {
		attempt := p.send(ctx, n)
		attempts = append(attempts, attempt)
		logger := logger.With("attempt", len(attempts))

		if attempt.Result == domain.DeliveryResultDelivered {
			return domain.NewOutcome(task, domain.OutcomeSucceeded, len(attempts), ""), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt.Result == domain.DeliveryResultPermanent {
			telemetry.SetSpanError(ctx, attempt.Err)
			return domain.NewOutcome(task, domain.OutcomeFailedPermanent, len(attempts), summarize(attempts, nil)), nil
		}

		if len(attempts) >= p.maxAttempts {
			telemetry.SetSpanError(ctx, attempt.Err)
			return domain.NewOutcome(task, domain.OutcomeFailedPermanent, len(attempts), summarize(attempts, ErrRetryExhausted)), nil
		}

		delay := b.Next(p.clock.Now(), delivery.RetryAfter(attempt.Err))
		logger.Warn("delivery failed, retrying", "delay", delay, "error", attempt.Err)
		telemetry.AddSpanEvent(ctx, "delivery.retry", attribute.Int64("delay_ms", delay.Milliseconds()))

		if err := b.Wait(ctx, p.clock); err != nil {
			return nil, err
		}
	}
}

// send выполняет одну попытку доставки.
func (p *Processor) send(ctx context.Context, n Notification) domain.DeliveryAttempt {
	start := p.clock.Now()
	err := p.client.Send(ctx, n.Recipient, n.Content)
	latency := p.clock.Now().Sub(start)

	result := domain.DeliveryResultDelivered
	switch {
	case err == nil:
	case delivery.IsPermanent(err):
		result = domain.DeliveryResultPermanent
	default:
		result = domain.DeliveryResultTransient
	}

	p.metrics.DeliveryAttempts.WithLabelValues(string(result)).Inc()
	p.metrics.DeliveryLatency.Observe(latency.Seconds())

	return domain.DeliveryAttempt{
		Recipient: n.Recipient,
		Content:   n.Content,
		Result:    result,
		Err:       err,
		Latency:   latency,
	}
}

// summarize сворачивает попытки в detail outcome.
func summarize(attempts []domain.DeliveryAttempt, cause error) string {
	last := attempts[len(attempts)-1]
	if cause != nil {
		return fmt.Sprintf("%v after %d attempts: %v", cause, len(attempts), last.Err)
	}
	return fmt.Sprintf("%s error on attempt %d: %v", last.Result, len(attempts), last.Err)
}

// settle выполняет ack/nack согласно verdict.
// Ошибка ack не меняет verdict: брокер доставит снова, и сработает idempotency.
func (p *Processor) settle(d Delivery, v Verdict, logger *slog.Logger) Verdict {
	var err error
	switch v {
	case VerdictAck:
		err = d.Ack()
	case VerdictRequeue:
		err = d.Nack(true)
	case VerdictReject:
		err = d.Nack(false)
	case VerdictAbandon:
		return v
	}
	if err != nil {
		logger.Warn("failed to settle message", "verdict", v, "error", err)
	}
	return v
}
