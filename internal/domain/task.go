package domain

import (
	"encoding/json"
	"time"
)

// TaskKind — тип задачи из очереди.
type TaskKind string

// Известные типы задач.
const (
	// TaskKindSendNotification — отправить произвольное сообщение получателю.
	TaskKindSendNotification TaskKind = "send-notification"

	// TaskKindSendWelcome — приветствие нового пользователя после регистрации.
	TaskKindSendWelcome TaskKind = "send-welcome"
)

// Task — единица работы, полученная из очереди.
//
// Task создаётся продюсером (API-слой) и публикуется в RabbitMQ.
// Worker получает её минимум один раз (at-least-once), поэтому
// побочный эффект должен выполняться не более одного раза на ID.
type Task struct {
	// ID — уникальный идентификатор задачи, назначается продюсером.
	// Используется как ключ идемпотентности.
	ID string `json:"id"`

	// Kind — тип задачи, определяет обработчик.
	Kind TaskKind `json:"kind"`

	// Payload — данные, специфичные для Kind.
	Payload json.RawMessage `json:"payload,omitempty"`

	// EnqueuedAt — время постановки в очередь (выставляет продюсер).
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Redelivered — брокер уже доставлял это сообщение раньше.
	// Не сериализуется, заполняется из AMQP delivery.
	Redelivered bool `json:"-"`
}

// QueueLatency возвращает время между постановкой в очередь и now.
func (t *Task) QueueLatency(now time.Time) time.Duration {
	if t.EnqueuedAt.IsZero() {
		return 0
	}
	return now.Sub(t.EnqueuedAt)
}

// TaskOutcome — сохранённый результат обработки задачи.
//
// Создаётся ровно один раз, когда задача достигает терминального
// состояния. После этого не изменяется.
type TaskOutcome struct {
	// TaskID — ссылка на Task.ID (уникален в хранилище).
	TaskID string `json:"task_id"`

	// Kind — тип задачи (для аналитики).
	Kind TaskKind `json:"kind"`

	// Status — итоговый статус.
	Status OutcomeStatus `json:"status"`

	// Attempts — сколько раз вызывался Delivery Client.
	Attempts int `json:"attempts"`

	// CompletedAt — время достижения терминального состояния.
	CompletedAt time.Time `json:"completed_at"`

	// Detail — диагностический текст.
	Detail string `json:"detail,omitempty"`
}

// NewOutcome создаёт outcome с текущим временем.
func NewOutcome(task *Task, status OutcomeStatus, attempts int, detail string) *TaskOutcome {
	return &TaskOutcome{
		TaskID:      task.ID,
		Kind:        task.Kind,
		Status:      status,
		Attempts:    attempts,
		CompletedAt: time.Now().UTC(),
		Detail:      detail,
	}
}

// DeliveryResult — результат одного вызова Delivery Client.
type DeliveryResult string

const (
	DeliveryResultDelivered DeliveryResult = "delivered"
	DeliveryResultTransient DeliveryResult = "transient"
	DeliveryResultPermanent DeliveryResult = "permanent"
)

// DeliveryAttempt — запись об одной попытке доставки.
// Живёт только в памяти, пока задача не завершена.
type DeliveryAttempt struct {
	Recipient string
	Content   string
	Result    DeliveryResult
	Err       error
	Latency   time.Duration
}
