// Package api содержит операторский HTTP API.
//
// Структура:
//   - handler.go          — Handler с DI (архив, breaker, планировщик, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects
//   - dlq_handler.go      — обработчики для /dlq
//   - provider_handler.go — обработчики для /providers
//   - match_handler.go    — ручное планирование, отмена и сверка
//
// API не меняет расписание матчей само по себе: оно только дёргает
// планировщик и Dead Letter Archive.
package api
