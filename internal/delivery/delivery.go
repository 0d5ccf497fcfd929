// Package delivery описывает контракт Delivery Client и общий rate limit.
//
// Client.Send возвращает:
//   - nil — сообщение доставлено
//   - ошибку, для которой IsPermanent == true — повтор бесполезен
//   - любую другую ошибку — временная, можно повторить
//
// Throttled оборачивает Client глобальным token bucket: один экземпляр
// разделяют все конкурентные обработчики задач.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Client — внешний канал доставки уведомлений.
type Client interface {
	Send(ctx context.Context, recipient, content string) error
}

// Ошибки доставки.
var (
	// ErrTransient — временная ошибка (rate limit, timeout, 5xx).
	ErrTransient = errors.New("transient delivery error")

	// ErrPermanent — постоянная ошибка (неверный получатель, контент отклонён).
	ErrPermanent = errors.New("permanent delivery error")
)

// Permanent помечает ошибку как постоянную.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Transient помечает ошибку как временную.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// retryable реализуется ошибками конкретных клиентов (telegram).
type retryable interface {
	IsRetryable() bool
}

// retryAfter реализуется ошибками с подсказкой от API.
type retryAfter interface {
	RetryAfterDuration() time.Duration
}

// IsPermanent определяет, что ошибку не нужно повторять.
//
// Неизвестные ошибки считаются временными. Отмена контекста
// не считается ни той, ни другой: вызывающий должен проверить ctx.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	if errors.Is(err, ErrTransient) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return !r.IsRetryable()
	}
	return false
}

// RetryAfter возвращает минимальную задержку перед повтором, если API её сообщило.
func RetryAfter(err error) time.Duration {
	var r retryAfter
	if errors.As(err, &r) {
		return r.RetryAfterDuration()
	}
	return 0
}

// Throttled — Client с глобальным минимальным интервалом между вызовами.
type Throttled struct {
	next    Client
	limiter *rate.Limiter
}

// NewThrottled создаёт обёртку: не чаще одного вызова в interval.
// interval <= 0 отключает ограничение.
func NewThrottled(next Client, interval time.Duration) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Send ждёт токен и вызывает обёрнутый Client.
func (t *Throttled) Send(ctx context.Context, recipient, content string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return t.next.Send(ctx, recipient, content)
}
