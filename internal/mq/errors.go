package mq

import "errors"

// Ошибки брокера.
var (
	// ErrConnection — не удалось установить сессию (dial, channel, topology).
	// Вызывающий повторяет Dial с backoff.
	ErrConnection = errors.New("broker connection failed")

	// ErrConnectionLost — сессия закрыта брокером или сетью.
	ErrConnectionLost = errors.New("broker connection lost")

	// ErrQueueMismatch — очередь уже объявлена с другими параметрами
	// (например, non-durable очередь старого продюсера). Повтор не поможет.
	ErrQueueMismatch = errors.New("queue exists with different arguments")
)
