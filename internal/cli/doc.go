// Package cli реализует операторскую утилиту courier.
//
// # Обзор
//
// CLI работает напрямую с инфраструктурой воркера: публикует задачи
// в RabbitMQ (с publisher confirms) и читает outcomes из PostgreSQL.
// Конфигурация та же, что у воркера (RABBITMQ_URL, DATABASE_URL, ...),
// но проверяются только секции broker и store.
//
// # Ключевые компоненты
//
// ## Client
//
// Реализует Backend. Соединения открываются лениво, поэтому
// enqueue работает без базы, а outcomes без брокера.
//
//	client := cli.NewClient(cfg, logger)
//	defer client.Close()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr,
// поэтому работает pipe: courier outcomes list --json | jq .
//
// ## Commands
//
//   - enqueue: notification, welcome
//   - outcomes: list, show, stats
//
// Каждая группа создаётся фабрикой (NewEnqueueCmd, NewOutcomesCmd),
// принимающей backendFn и outputFn — замыкания, которые вызываются
// после разбора PersistentFlags.
package cli
