// Package api — служебный HTTP-сервер воркера.
//
// Структура:
//   - server.go     — mux и http.Server
//   - health.go     — /healthz по набору проверок (брокер, база)
//   - middleware.go — middleware (logging, recovery)
//   - response.go   — JSON-ответы
//
// Бизнес-операций здесь нет: задачи приходят только через очередь.
package api
