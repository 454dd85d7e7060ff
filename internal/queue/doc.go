// Package queue реализует Queue Router — набор изолированных lanes
// для задач жизненного цикла матча.
//
// Отложенные задачи хранятся в Redis (sorted set на lane), промоутер
// переносит наступившие задачи в очереди RabbitMQ (пакет mq). Ключ
// идемпотентности делает повторную постановку no-op, Cancel удаляет
// ожидающую задачу.
//
// Структура:
//   - lanes.go  — LaneConfig, LaneSet, GetOrCreateLane
//   - store.go  — хранилище отложенных задач в Redis
//   - router.go — Enqueue / Cancel / IsHealthy / EnsureHealthy / Shutdown, промоутер
package queue
