package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownKind — нет обработчика для kind задачи.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrInvalidPayload — payload не соответствует kind.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrRetryExhausted — все попытки доставки исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrAlreadyRunning — Run вызван повторно.
	ErrAlreadyRunning = errors.New("worker already running")
)
