// Package resilience классифицирует ошибки провайдеров и ведёт их здоровье.
//
// Две половины:
//   - classify.go / backoff.go — чистая логика: Classify(err) → ErrorKind,
//     Backoff(kind, attempt) → задержка, IsTerminal / IsRetryable
//   - breaker.go — circuit breaker (ProviderHealth) поверх HealthStore
//
// Ключевое решение: в порог отключения засчитываются только model-specific
// ошибки (parse_error, client_error). Rate limit, таймауты, 5xx и сетевые
// ошибки общего upstream не отключают здоровых провайдеров.
//
// Восстановление:
//
//	breaker.Recover(ctx) // раз в несколько минут из планировщика
//
// снимает AutoDisabled, если с последней ошибки прошёл cooldown, и оставляет
// счётчик равным RecoverPartial (по умолчанию 2).
package resilience
