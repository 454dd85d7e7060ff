package api

import (
	"encoding/json"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Dead letter DTOs

// DeadLetterResponse — ответ с записью архива.
type DeadLetterResponse struct {
	TaskID         string          `json:"task_id"`
	Lane           domain.Lane     `json:"lane"`
	TaskType       domain.TaskType `json:"task_type"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Reason         string          `json:"reason"`
	Attempts       int             `json:"attempts"`
	FailedAt       time.Time       `json:"failed_at"`
}

// DeadLetterFromDomain конвертирует domain.DeadLetterEntry в DeadLetterResponse.
func DeadLetterFromDomain(e domain.DeadLetterEntry) DeadLetterResponse {
	return DeadLetterResponse{
		TaskID:         e.TaskID,
		Lane:           e.Lane,
		TaskType:       e.TaskType,
		IdempotencyKey: e.IdempotencyKey,
		Payload:        e.Payload,
		Reason:         e.Reason,
		Attempts:       e.Attempts,
		FailedAt:       e.FailedAt,
	}
}

// CountResponse — размер архива.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ClearResponse — результат очистки архива.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// Provider DTOs

// ProviderResponse — ответ с состоянием провайдера.
type ProviderResponse struct {
	Provider            string     `json:"provider"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	FailureReason       string     `json:"failure_reason,omitempty"`
}

// ProviderFromDomain конвертирует domain.ProviderHealth в ProviderResponse.
func ProviderFromDomain(h domain.ProviderHealth) ProviderResponse {
	status := "enabled"
	if h.AutoDisabled {
		status = "disabled"
	}
	return ProviderResponse{
		Provider:            h.Provider,
		Status:              status,
		ConsecutiveFailures: h.ConsecutiveFailures,
		LastFailureAt:       h.LastFailureAt,
		LastSuccessAt:       h.LastSuccessAt,
		FailureReason:       h.FailureReason,
	}
}

// Match DTOs

// ScheduleResponse — результат ручного планирования матча.
type ScheduleResponse struct {
	MatchID string `json:"match_id"`
	Created int    `json:"created"`
}

// CancelResponse — результат отмены задач матча.
type CancelResponse struct {
	MatchID   string `json:"match_id"`
	Cancelled int    `json:"cancelled"`
}

// ReconcileResponse — результат внеплановой сверки.
type ReconcileResponse struct {
	ScheduledCount int `json:"scheduled_count"`
	MatchesSeen    int `json:"matches_seen"`
	StuckFixed     int `json:"stuck_fixed"`
	Failed         int `json:"failed"`
}
