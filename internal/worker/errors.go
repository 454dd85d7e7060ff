package worker

import "errors"

// Ошибки воркера.
var (
	// ErrUnknownTaskType — нет executor'а для данного типа задачи.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidPayload — payload задачи не удалось разобрать.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrRetryExhausted — все попытки retry исчерпаны.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrMatchNotFound — матч задачи не найден.
	ErrMatchNotFound = errors.New("match not found")

	// ErrNoFinalScore — для settle нет финального счёта.
	ErrNoFinalScore = errors.New("final score unknown")
)

// isPermanent — ошибки, которые не исправит повтор.
func isPermanent(err error) bool {
	return errors.Is(err, ErrUnknownTaskType) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrMatchNotFound)
}
