// Package backoff — экспоненциальная задержка как явное состояние.
//
// Backoff хранит номер попытки и момент, раньше которого следующая
// попытка не разрешена. Ожидание выполняется через Clock, поэтому
// в тестах время подменяется, а отмена работает через context.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock — источник времени.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock — реальное время.
var SystemClock Clock = systemClock{}

// Policy — параметры backoff.
type Policy struct {
	// Initial — задержка перед первой повторной попыткой.
	Initial time.Duration

	// Max — верхняя граница задержки.
	Max time.Duration

	// Multiplier — множитель между попытками (default: 2).
	Multiplier float64

	// Jitter — доля случайного отклонения, 0.2 = ±20%.
	Jitter float64
}

// ReconnectPolicy — политика переподключения к брокеру: 1s → 30s, ±20%.
func ReconnectPolicy() Policy {
	return Policy{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// Delay вычисляет задержку для попытки attempt (начиная с 0) без jitter.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := float64(initial)
	for i := 0; i < attempt; i++ {
		delay *= mult
		if delay >= float64(maxDelay) {
			return maxDelay
		}
	}
	return min(time.Duration(delay), maxDelay)
}

// Backoff — состояние повторных попыток одной операции.
// Не безопасен для конкурентного использования.
type Backoff struct {
	policy  Policy
	attempt int
	nextAt  time.Time
	rnd     func() float64
}

// New создаёт Backoff с нулевым счётчиком.
func New(p Policy) *Backoff {
	return &Backoff{policy: p, rnd: rand.Float64}
}

// Attempt возвращает количество уже выданных задержек.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// NextAt возвращает момент, раньше которого следующая попытка запрещена.
func (b *Backoff) NextAt() time.Time {
	return b.nextAt
}

// Next вычисляет задержку для текущей попытки, увеличивает счётчик
// и запоминает NextAt = now + delay.
//
// floor — минимальная задержка (например, retry_after от API).
func (b *Backoff) Next(now time.Time, floor time.Duration) time.Duration {
	delay := b.policy.Delay(b.attempt)
	delay = b.jitter(delay)
	if delay < floor {
		delay = floor
	}

	b.attempt++
	b.nextAt = now.Add(delay)
	return delay
}

// Reset сбрасывает состояние после успешной операции.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.nextAt = time.Time{}
}

func (b *Backoff) jitter(d time.Duration) time.Duration {
	if b.policy.Jitter <= 0 {
		return d
	}
	j := 1 + (b.rnd()*2-1)*b.policy.Jitter
	d = time.Duration(float64(d) * j)
	if b.policy.Max > 0 && d > b.policy.Max {
		d = b.policy.Max
	}
	return d
}

// Wait ждёт до b.NextAt() по часам clock или до отмены ctx.
func (b *Backoff) Wait(ctx context.Context, clock Clock) error {
	d := b.nextAt.Sub(clock.Now())
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
