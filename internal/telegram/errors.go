package telegram

import (
	"errors"
	"fmt"
	"time"
)

// PermanentError — ошибка, которую бессмысленно повторять
// (чат не найден, бот заблокирован, неверный токен).
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("telegram error: %s", e.Message)
}

// IsRetryable всегда false.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError — временная ошибка (5xx, сеть, таймаут).
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("telegram error: %s", e.Message)
}

// IsRetryable всегда true.
func (e *RetryableError) IsRetryable() bool { return true }

// RateLimitError — ответ 429 с подсказкой retry_after.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram rate limited (retry after %s): %s", e.RetryAfter, e.Message)
}

// IsRetryable всегда true.
func (e *RateLimitError) IsRetryable() bool { return true }

// RetryAfterDuration возвращает задержку, запрошенную API.
func (e *RateLimitError) RetryAfterDuration() time.Duration { return e.RetryAfter }

// IsRetryable проверяет, можно ли повторить запрос после err.
// Неизвестные ошибки и nil — false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return false
}

// GetRetryAfter возвращает retry_after из RateLimitError или 0.
func GetRetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
