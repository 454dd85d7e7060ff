package domain

import "time"

// ProviderHealth — состояние здоровья провайдера прогнозов (circuit breaker).
//
// Изменяется только через resilience.Breaker (RecordFailure / RecordSuccess / Recover).
// ConsecutiveFailures растёт только на model-specific ошибках.
type ProviderHealth struct {
	// Provider — имя провайдера.
	Provider string `json:"provider"`

	// ConsecutiveFailures — число подряд идущих model-specific ошибок.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastFailureAt — время последней ошибки любого типа.
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`

	// LastSuccessAt — время последнего успешного батча.
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// AutoDisabled — провайдер отключён автоматически.
	AutoDisabled bool `json:"auto_disabled"`

	// FailureReason — текст последней ошибки.
	FailureReason string `json:"failure_reason,omitempty"`
}

// CooledDown проверяет, прошёл ли cooldown с момента последней ошибки.
func (h *ProviderHealth) CooledDown(now time.Time, cooldown time.Duration) bool {
	if h.LastFailureAt == nil {
		return true
	}
	return now.Sub(*h.LastFailureAt) >= cooldown
}

// PredictionAttempt — неудачные попытки прогноза для пары (матч, провайдер).
//
// Создаётся при первой неудаче, удаляется при успехе,
// чистится по возрасту независимо от результата.
type PredictionAttempt struct {
	MatchID       string    `json:"match_id"`
	Provider      string    `json:"provider"`
	Attempts      int       `json:"attempts"`
	LastErrorKind string    `json:"last_error_kind"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// Prediction — прогноз счёта от провайдера.
type Prediction struct {
	MatchID   string    `json:"match_id"`
	Provider  string    `json:"provider"`
	Score     Score     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageRecord — учёт стоимости одного вызова провайдера.
// Пишется после каждой попытки, включая неудачные.
type UsageRecord struct {
	ID             string        `json:"id"`
	Provider       string        `json:"provider"`
	BatchSize      int           `json:"batch_size"`
	Success        bool          `json:"success"`
	ProcessingTime time.Duration `json:"processing_time"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	CostUSD        float64       `json:"cost_usd"`
	CreatedAt      time.Time     `json:"created_at"`
}
