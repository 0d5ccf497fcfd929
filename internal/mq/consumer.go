package mq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/courier/internal/codec"
)

// Delivery — полученное сообщение с методами ack/nack.
type Delivery struct {
	raw amqp.Delivery
}

// NewDelivery оборачивает AMQP delivery.
func NewDelivery(raw amqp.Delivery) *Delivery {
	return &Delivery{raw: raw}
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.raw.Body
}

// Meta возвращает метаданные для декодера.
func (d *Delivery) Meta() codec.Meta {
	return codec.Meta{
		MessageID:   d.raw.MessageId,
		Timestamp:   d.raw.Timestamp,
		Redelivered: d.raw.Redelivered,
	}
}

// Headers возвращает заголовки (trace context и прочее).
func (d *Delivery) Headers() map[string]any {
	return d.raw.Headers
}

// Ack подтверждает обработку. Терминально.
func (d *Delivery) Ack() error {
	return d.raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.raw.Nack(false, requeue)
}
