// Package worker — конвейер обработки задач из очереди.
//
// # Обзор
//
// Worker получает задачи из RabbitMQ и доставляет уведомления через
// Telegram так, чтобы повторная доставка сообщения брокером
// (at-least-once) не приводила к повторной отправке.
//
// # Ключевые компоненты
//
// ## Processor
//
// Обрабатывает одно сообщение и сам делает ack/nack:
//
//  1. Decode; ошибка → nack(requeue=false), сообщение уходит в DLQ
//  2. AlreadyCompleted(task_id); true → ack без отправки
//  3. Handler по kind строит получателя и текст; неизвестный kind
//     или плохой payload → failed-permanent без вызова клиента
//  4. Send с повторами: временные ошибки повторяются с backoff,
//     не больше MaxAttempts вызовов; retry_after от API задаёт
//     минимальную задержку
//  5. Record(outcome) → ack; ErrConflict тоже ack;
//     другая ошибка хранилища → nack(requeue=true)
//
// ## Worker
//
// Worker Loop: переподключение к брокеру с backoff, пул из Concurrency
// обработчиков, остановка с grace-периодом. Если grace истёк, оставшиеся
// задачи бросаются без ack, и брокер вернёт их в очередь.
//
//	w := worker.New(worker.Config{
//	    Dial:          worker.MQDialer(mqClient),
//	    Processor:     processor,
//	    Concurrency:   8,
//	    ShutdownGrace: 30 * time.Second,
//	})
//	err := w.Run(ctx)
//
// ## Registry
//
// Обработчики по kind: send-notification и send-welcome.
//
// ## StatsReporter
//
// По расписанию cron обновляет gauge courier_outcomes{status}.
package worker
