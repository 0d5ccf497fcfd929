// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - tracing.go — OpenTelemetry: provider, span helpers, перенос
//     trace context через заголовки AMQP
//
// Prometheus-метрики объявлены рядом с кодом, который их пишет
// (internal/worker/metrics.go), и отдаются на /metrics.
package telemetry
