package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Kickoff/internal/resilience"
)

// Ошибки оркестратора.
var (
	// ErrEmptyPrediction — провайдер ответил без единого прогноза.
	// Классифицируется как parse_error.
	ErrEmptyPrediction = fmt.Errorf("model returned no predictions: %w", resilience.ErrParse)

	// ErrProviderFailed — провайдер вернул Success=false без ошибки транспорта.
	ErrProviderFailed = errors.New("provider reported failure")

	// ErrBudgetExceeded — бюджет времени волны исчерпан.
	ErrBudgetExceeded = errors.New("wave time budget exceeded")
)
