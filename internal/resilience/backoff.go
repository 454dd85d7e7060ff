package resilience

import (
	"math/rand/v2"
	"time"
)

// Параметры backoff.
const (
	rateLimitDelay = 60 * time.Second

	timeoutStep = 5 * time.Second
	timeoutCap  = 30 * time.Second

	parseInitial = 5 * time.Second
	parseCap     = 20 * time.Second

	defaultInitial = 2 * time.Second
	defaultCap     = 60 * time.Second

	// jitterFraction — доля случайного разброса (±25%).
	jitterFraction = 0.25
)

// jitter возвращает случайное число в [-1, 1). Переопределяется в тестах.
var jitter = func() float64 {
	return rand.Float64()*2 - 1
}

// Backoff вычисляет задержку перед повтором для класса ошибки.
// attempt — номер неудавшейся попытки, начиная с 1.
//
// Стратегии:
//   - rate_limit: фиксированные 60s
//   - timeout: линейно min(attempt × 5s, 30s)
//   - parse_error: экспоненциально 5s, 10s, 20s (cap 20s)
//   - остальные: экспоненциально от 2s с jitter ±25%, cap 60s
//
// Jitter разносит повторы провайдеров, упавших одновременно.
func Backoff(kind ErrorKind, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	switch kind {
	case KindRateLimit:
		return rateLimitDelay

	case KindTimeout:
		return min(time.Duration(attempt)*timeoutStep, timeoutCap)

	case KindParseError:
		return exponential(parseInitial, attempt, parseCap)

	default:
		base := exponential(defaultInitial, attempt, defaultCap)
		delay := time.Duration(float64(base) * (1 + jitterFraction*jitter()))
		if delay > defaultCap {
			delay = defaultCap
		}
		if delay <= 0 {
			delay = defaultInitial
		}
		return delay
	}
}

// exponential: initial * 2^(attempt-1), не больше maxDelay.
func exponential(initial time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}
