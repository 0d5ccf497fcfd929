// Package mq — Broker Client для RabbitMQ.
//
// Структура:
//   - connection.go — Client.Dial (одна попытка) и Session.Receive
//   - topology.go   — рабочая очередь и её dead-letter пара
//   - consumer.go   — Delivery: тело, метаданные, ack/nack
//   - publisher.go  — публикация задач с publisher confirms
//
// Топология по умолчанию:
//
//	courier.tasks (durable, manual ack)
//	  └── nack(requeue=false) → courier.dlx (direct) → courier.tasks.dlq
//
// Топология объявляется при каждом Dial, поэтому после рестарта
// брокера очереди появляются снова.
//
// Старый продюсер пишет "<user_id>,<username>" в telegram_queue; чтобы
// принимать его сообщения, задайте RABBITMQ_QUEUE=telegram_queue. Если
// очередь уже существует как non-durable без DLX, брокер отвечает
// PRECONDITION_FAILED и Dial возвращает ErrQueueMismatch: очередь нужно
// удалить (или дочитать) старым потребителем до запуска воркера.
package mq
