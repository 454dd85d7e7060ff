package resilience

import (
	"errors"
	"fmt"
)

// ErrorKind — класс ошибки провайдера. Закрытое перечисление:
// Classify всегда возвращает одно из значений ниже.
type ErrorKind string

const (
	KindRateLimit    ErrorKind = "rate_limit"
	KindTimeout      ErrorKind = "timeout"
	KindServerError  ErrorKind = "server_error"
	KindNetworkError ErrorKind = "network_error"
	KindParseError   ErrorKind = "parse_error"
	KindClientError  ErrorKind = "client_error"
	KindUnknown      ErrorKind = "unknown"
)

// AllKinds — все классы ошибок.
var AllKinds = []ErrorKind{
	KindRateLimit,
	KindTimeout,
	KindServerError,
	KindNetworkError,
	KindParseError,
	KindClientError,
	KindUnknown,
}

// String возвращает строковое представление ErrorKind.
func (k ErrorKind) String() string {
	return string(k)
}

// IsTransient возвращает true для инфраструктурных ошибок общего upstream.
// Они ретраятся, но не засчитываются в отключение провайдера.
func (k ErrorKind) IsTransient() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServerError, KindNetworkError:
		return true
	case KindParseError, KindClientError, KindUnknown:
		return false
	default:
		return false
	}
}

// DefaultModelSpecific — классы, которые засчитываются в порог отключения.
var DefaultModelSpecific = []ErrorKind{KindParseError, KindClientError}

// Ошибки пакета.
var (
	// ErrParse — ответ провайдера не удалось разобрать.
	ErrParse = errors.New("parse error")

	// ErrBudgetExhausted — исчерпан бюджет провайдера. Терминальная ошибка.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrAuth — провайдер отклонил учётные данные. Терминальная ошибка.
	ErrAuth = errors.New("authentication failed")

	// ErrProviderNotFound — для провайдера нет записи о здоровье.
	ErrProviderNotFound = errors.New("provider not found")
)

// StatusError — ошибка с HTTP-подобным статусом от провайдера.
type StatusError struct {
	Code    int
	Message string
}

// Error реализует интерфейс error.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}
