package mq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology — имена очереди задач и её dead-letter пары.
type Topology struct {
	// Queue — рабочая очередь (durable).
	Queue string

	// DeadLetterExchange — куда уходят сообщения после nack(requeue=false).
	DeadLetterExchange string

	// DeadLetterQueue — очередь, привязанная к DeadLetterExchange.
	DeadLetterQueue string
}

// DefaultTopology возвращает топологию для очереди queue:
// <queue> → dlx courier.dlx → <queue>.dlq
func DefaultTopology(queue string) Topology {
	if queue == "" {
		queue = "courier.tasks"
	}
	return Topology{
		Queue:              queue,
		DeadLetterExchange: "courier.dlx",
		DeadLetterQueue:    queue + ".dlq",
	}
}

// declarer — часть *amqp.Channel, нужная для объявления топологии.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare объявляет exchange, очереди и binding.
// Идемпотентно: выполняется при каждом Dial.
func (t Topology) Declare(ch declarer) error {
	// 1. Dead-letter exchange
	err := ch.ExchangeDeclare(
		t.DeadLetterExchange, // name
		"direct",             // type
		true,                 // durable
		false,                // auto-deleted
		false,                // internal
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange, err)
	}

	// 2. DLQ и её binding
	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, t.Queue, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", t.DeadLetterQueue, t.DeadLetterExchange, err)
	}

	// 3. Рабочая очередь (публикация через default exchange)
	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.Queue,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
			return fmt.Errorf("declare queue %s: %w (delete it or choose another RABBITMQ_QUEUE): %w",
				t.Queue, ErrQueueMismatch, err)
		}
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}

	return nil
}

// String возвращает описание топологии для логирования.
func (t Topology) String() string {
	return fmt.Sprintf("%s (dlx %s → %s)", t.Queue, t.DeadLetterExchange, t.DeadLetterQueue)
}
